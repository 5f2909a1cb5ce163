package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kushsharma/parallel"
	"github.com/rs/zerolog"

	"opsbridge/console/internal/config"
	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/ident"
	"opsbridge/console/internal/models"
	"opsbridge/console/internal/status"
	"opsbridge/console/internal/store"
)

// Handle tracks one in-flight execution. Callers may poll the store or
// wait on Done; Done closes once the terminal status has been written.
type Handle struct {
	JobNum  int
	ExecNum int

	done   chan struct{}
	cancel context.CancelFunc
}

// ID returns the hierarchical identifier of the execution.
func (h *Handle) ID() string {
	return ident.ID{Job: h.JobNum, Exec: h.ExecNum}.String()
}

// Done is closed when the execution reaches a terminal status.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Coordinator fans a job out across its target set: one branch per target
// under bounded concurrency, each branch running the job's actions
// sequentially. Errors inside one branch never touch its siblings.
type Coordinator struct {
	store    *store.Store
	registry *connector.Registry
	alloc    *ident.Allocator
	cfg      config.EngineConfig
	notifier Notifier
	log      zerolog.Logger

	mu        sync.Mutex
	inflight  map[string]*Handle
	typeSlots map[string]chan struct{}
}

// NewCoordinator wires the engine together. notifier may be nil.
func NewCoordinator(s *store.Store, registry *connector.Registry, alloc *ident.Allocator, cfg config.EngineConfig, notifier Notifier, log zerolog.Logger) *Coordinator {
	typeSlots := make(map[string]chan struct{})
	for targetType, limit := range cfg.TargetTypeLimits {
		if limit > 0 {
			typeSlots[targetType] = make(chan struct{}, limit)
		}
	}
	return &Coordinator{
		store:     s,
		registry:  registry,
		alloc:     alloc,
		cfg:       cfg,
		notifier:  notifier,
		log:       log,
		inflight:  make(map[string]*Handle),
		typeSlots: typeSlots,
	}
}

// AllocateJobNumber issues the next job number for a new job definition.
func (c *Coordinator) AllocateJobNumber() (int, error) {
	return c.alloc.NextJobNumber()
}

// StartExecution validates the job, allocates the execution and its
// branches atomically, and starts the fan-out. It returns as soon as the
// execution exists; branches run in the background.
func (c *Coordinator) StartExecution(ctx context.Context, jobNum int) (*Handle, error) {
	job, err := c.store.GetJob(jobNum)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := validateJob(job); err != nil {
		return nil, err
	}

	execNum, err := c.alloc.NextExecutionNumber(job.JobNum)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate execution number: %w", err)
	}

	targets := make([]*models.Target, 0, len(job.Targets))
	for i := range job.Targets {
		targets = append(targets, &job.Targets[i].Target)
	}

	exec := models.Execution{
		JobNum:       job.JobNum,
		ExecNum:      execNum,
		Status:       string(status.Running),
		TotalTargets: len(targets),
		StartedAt:    time.Now(),
	}
	branches := make([]models.Branch, 0, len(targets))
	for _, target := range targets {
		branchIdx, err := c.alloc.NextBranchIndex(job.JobNum, execNum)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate branch index: %w", err)
		}
		branches = append(branches, models.Branch{
			JobNum:     job.JobNum,
			ExecNum:    execNum,
			BranchIdx:  branchIdx,
			TargetID:   target.ID,
			TargetName: target.Name,
			Status:     string(status.Pending),
		})
	}

	if err := c.store.CreateExecution(&exec, branches); err != nil {
		return nil, err
	}
	if err := c.store.MarkJobExecuted(job.JobNum); err != nil {
		c.log.Error().Err(err).Int("job", job.JobNum).Msg("failed to bump execution count")
	}

	execCtx, cancel := context.WithCancel(context.Background())
	handle := &Handle{
		JobNum:  job.JobNum,
		ExecNum: execNum,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	c.mu.Lock()
	c.inflight[handle.ID()] = handle
	c.mu.Unlock()

	c.log.Info().
		Str("execution", handle.ID()).
		Int("targets", len(targets)).
		Msg("execution started")
	c.notify("execution.started", handle.ID(), status.Running, "")

	go c.runExecution(execCtx, handle, job, branches, targets)

	return handle, nil
}

// runExecution fans branches out on a bounded runner, joins them all, and
// writes the rolled-up terminal status.
func (c *Coordinator) runExecution(ctx context.Context, handle *Handle, job *models.Job, branches []models.Branch, targets []*models.Target) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, handle.ID())
		c.mu.Unlock()
		close(handle.done)
	}()

	runner := parallel.NewRunner(parallel.WithLimit(c.cfg.MaxConcurrentBranches))
	for i := range branches {
		branch := branches[i]
		target := targets[i]
		runner.Add(func() (interface{}, error) {
			release := c.acquireTypeSlot(ctx, target.Type)
			defer release()

			br := &branchRunner{
				coord:  c,
				job:    job,
				branch: branch,
				target: target,
				log: c.log.With().
					Str("branch", branch.Ident().String()).
					Str("target", target.Name).
					Logger(),
			}
			return br.run(ctx), nil
		})
	}

	// Run blocks until every branch reports in; completion is counted by
	// the runner, not polled.
	states := runner.Run()

	branchStatuses := make([]status.Status, 0, len(states))
	succeeded, failed := 0, 0
	for _, state := range states {
		st := state.Val.(status.Status)
		branchStatuses = append(branchStatuses, st)
		switch st {
		case status.Completed:
			succeeded++
		case status.Failed:
			failed++
		}
	}

	final := status.Aggregate(branchStatuses...)
	if err := c.store.FinishExecution(handle.JobNum, handle.ExecNum, final, succeeded, failed); err != nil {
		c.log.Error().Err(err).Str("execution", handle.ID()).Msg("failed to finish execution")
	}

	c.log.Info().
		Str("execution", handle.ID()).
		Str("status", string(final)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("execution finished")
	c.notify("execution.finished", handle.ID(), final, "")
}

// acquireTypeSlot takes a per-target-type slot when one is configured.
// A cancelled execution stops waiting; its branch then sees the cancelled
// context and marks itself accordingly.
func (c *Coordinator) acquireTypeSlot(ctx context.Context, targetType string) func() {
	slots, ok := c.typeSlots[targetType]
	if !ok {
		return func() {}
	}
	select {
	case slots <- struct{}{}:
		return func() { <-slots }
	case <-ctx.Done():
		return func() {}
	}
}

// Cancel requests a cooperative stop of an in-flight execution. Running
// branches stop after their current action; unstarted branches are marked
// cancelled without running.
func (c *Coordinator) Cancel(jobNum, execNum int) error {
	id := ident.ID{Job: jobNum, Exec: execNum}.String()

	c.mu.Lock()
	handle, ok := c.inflight[id]
	c.mu.Unlock()
	if !ok {
		return ErrExecutionNotRunning
	}

	if err := c.store.MarkExecutionCancelRequested(jobNum, execNum); err != nil {
		c.log.Error().Err(err).Str("execution", id).Msg("failed to flag cancellation")
	}
	c.log.Info().Str("execution", id).Msg("cancellation requested")
	handle.cancel()
	return nil
}

func validateJob(job *models.Job) error {
	err := validation.ValidateStruct(job,
		validation.Field(&job.Actions, validation.Required.Error("job has no actions")),
		validation.Field(&job.Targets, validation.Required.Error("job has no targets")),
		validation.Field(&job.FailurePolicy, validation.In("stop", "continue")),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}
