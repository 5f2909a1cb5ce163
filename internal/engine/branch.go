package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/models"
	"opsbridge/console/internal/status"
)

// branchRunner executes one job's actions against one target, strictly in
// ordinal order. It owns its connector exclusively and is the only writer
// of its branch's rows.
type branchRunner struct {
	coord  *Coordinator
	job    *models.Job
	branch models.Branch
	target *models.Target
	log    zerolog.Logger
}

// run drives the branch to a terminal status. Cancellation is cooperative:
// the execution context is checked between actions, never mid-action, so
// a started action always finishes and keeps its result.
func (r *branchRunner) run(ctx context.Context) status.Status {
	// Cancelled before anything started: no connector, no result rows.
	if ctx.Err() != nil {
		r.finish(status.Cancelled, "")
		return status.Cancelled
	}

	now := time.Now()
	r.branch.StartedAt = &now
	r.branch.Status = string(status.Running)
	if err := r.coord.store.UpdateBranch(&r.branch); err != nil {
		r.log.Error().Err(err).Msg("failed to mark branch running")
	}
	r.coord.notify("branch.started", r.branch.Ident().String(), status.Running, r.target.Name)

	conn, method, err := r.coord.registry.Resolve(r.target, r.job.DesiredProtocol)
	if err != nil {
		// An unresolvable target fails this branch only; siblings are
		// never affected.
		r.log.Warn().Err(err).Msg("connector resolution failed")
		r.finish(status.Failed, errorKind(err)+": "+err.Error())
		return status.Failed
	}
	defer conn.Close()

	r.branch.Protocol = method.Protocol
	r.log = r.log.With().Str("protocol", method.Protocol).Logger()

	statuses := make([]status.Status, 0, len(r.job.Actions))
	skipRemaining := false
	cancelled := false

	for _, action := range r.job.Actions {
		switch {
		case cancelled:
			statuses = append(statuses, r.record(action, status.Skipped))
		case ctx.Err() != nil:
			// First unstarted action after a cancel request.
			cancelled = true
			statuses = append(statuses, r.record(action, status.Cancelled))
		case skipRemaining:
			statuses = append(statuses, r.record(action, status.Skipped))
		default:
			st := r.runAction(ctx, conn, action)
			statuses = append(statuses, st)
			if st == status.Cancelled {
				// The connector aborted this action on cancel and its row
				// is already the cancelled one; everything after is skipped.
				cancelled = true
			} else if st == status.Failed && r.job.FailurePolicy != "continue" {
				skipRemaining = true
			}
		}
	}

	// A cancel that arrived before the first action leaves only
	// cancelled/skipped rows; the aggregate handles both shapes.
	final := status.Aggregate(statuses...)
	r.finish(final, "")
	return final
}

// runAction executes one action with its deadline and retry policy and
// writes its result before returning. The result row is created when the
// action starts and finalized exactly once.
func (r *branchRunner) runAction(ctx context.Context, conn connector.Connector, action models.Action) status.Status {
	idx, err := r.coord.alloc.NextActionResultIndex(r.branch.JobNum, r.branch.ExecNum, r.branch.BranchIdx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to allocate action result index")
		idx = action.Ordinal
	}

	act, buildErr := buildAction(action)

	started := time.Now()
	result := models.ActionResult{
		JobNum:     r.branch.JobNum,
		ExecNum:    r.branch.ExecNum,
		BranchIdx:  r.branch.BranchIdx,
		ActionIdx:  idx,
		ActionName: action.Name,
		Command:    act.Command,
		Status:     string(status.Running),
		StartedAt:  &started,
	}
	if err := r.coord.store.AppendActionResult(&result); err != nil {
		r.log.Error().Err(err).Msg("failed to append action result")
	}

	var outcome connector.Outcome
	execErr := buildErr
	if execErr == nil {
		outcome, execErr = r.execute(ctx, conn, action, act)
	}

	ended := time.Now()
	result.EndedAt = &ended
	result.DurationMS = ended.Sub(started).Milliseconds()
	result.Output = outcome.Output
	result.ErrOutput = outcome.ErrOutput
	if execErr == nil {
		// An errored action never produced an exit code; leave it null
		// rather than recording a misleading zero.
		code := int32(outcome.ExitCode)
		result.ExitCode = &code
	}

	switch {
	case execErr != nil && ctx.Err() == context.Canceled:
		// The execution was cancelled while this action was being torn
		// down; the action itself never completed.
		result.Status = string(status.Cancelled)
		result.Error = "CancelledError: execution cancelled"
	case execErr != nil:
		result.Status = string(status.Failed)
		result.Error = errorKind(execErr) + ": " + execErr.Error()
	case outcome.ExitCode != 0:
		result.Status = string(status.Failed)
		result.Error = "ExecutionError: action returned a failing exit code"
	default:
		result.Status = string(status.Completed)
	}

	if err := r.coord.store.FinalizeActionResult(&result); err != nil {
		r.log.Error().Err(err).Msg("failed to finalize action result")
	}

	st := status.Status(result.Status)
	r.log.Info().
		Str("action", action.Name).
		Int("ordinal", action.Ordinal).
		Str("status", result.Status).
		Int64("duration_ms", result.DurationMS).
		Msg("action finished")
	r.coord.notify("action.finished", result.Ident().String(), st, r.target.Name)
	return st
}

// execute runs one attempt loop: the action gets a single deadline and
// transient connection errors are retried with exponential backoff inside
// it. Errors the target already acted on are never retried.
func (r *branchRunner) execute(ctx context.Context, conn connector.Connector, action models.Action, act connector.Action) (connector.Outcome, error) {
	timeout := r.coord.cfg.ActionTimeout()
	if action.TimeoutSeconds > 0 {
		timeout = time.Duration(action.TimeoutSeconds) * time.Second
	} else if r.job.TimeoutSeconds > 0 {
		timeout = time.Duration(r.job.TimeoutSeconds) * time.Second
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retries := r.coord.cfg.MaxRetries
	if r.job.MaxRetries > 0 {
		retries = r.job.MaxRetries
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.coord.cfg.RetryBackoff()
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), actionCtx)

	return backoff.RetryWithData(func() (connector.Outcome, error) {
		outcome, err := conn.Execute(actionCtx, act)
		if err != nil && !connector.Transient(err) {
			return outcome, backoff.Permanent(err)
		}
		if err != nil {
			r.log.Warn().Err(err).Str("action", action.Name).Msg("transient connector error, retrying")
		}
		return outcome, err
	}, policy)
}

// record writes a row for an action that never ran (skipped or cancelled).
func (r *branchRunner) record(action models.Action, st status.Status) status.Status {
	idx, err := r.coord.alloc.NextActionResultIndex(r.branch.JobNum, r.branch.ExecNum, r.branch.BranchIdx)
	if err != nil {
		idx = action.Ordinal
	}
	result := models.ActionResult{
		JobNum:     r.branch.JobNum,
		ExecNum:    r.branch.ExecNum,
		BranchIdx:  r.branch.BranchIdx,
		ActionIdx:  idx,
		ActionName: action.Name,
		Status:     string(st),
	}
	if st == status.Cancelled {
		result.Error = "CancelledError: execution cancelled"
	}
	if err := r.coord.store.AppendActionResult(&result); err != nil {
		r.log.Error().Err(err).Msg("failed to append action result")
	}
	return st
}

func (r *branchRunner) finish(st status.Status, errMsg string) {
	now := time.Now()
	r.branch.Status = string(st)
	r.branch.Error = errMsg
	r.branch.EndedAt = &now
	if err := r.coord.store.UpdateBranch(&r.branch); err != nil {
		r.log.Error().Err(err).Msg("failed to finish branch")
	}
	r.log.Info().Str("status", string(st)).Msg("branch finished")
	r.coord.notify("branch.finished", r.branch.Ident().String(), st, r.target.Name)
}
