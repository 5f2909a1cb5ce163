package status

// Status is the lifecycle state of a job, execution, branch or action result.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
	Skipped   Status = "skipped"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case Pending, Running, Completed, Failed, Cancelled, Skipped:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state that cannot change anymore.
func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Failed, Cancelled, Skipped:
		return true
	}
	return false
}

// Aggregate rolls a set of child statuses up into the parent status.
// The same function computes a branch status from its action results and
// an execution status from its branch statuses.
//
// Precedence: any running child makes the parent running; otherwise any
// failure makes it failed; otherwise any cancellation makes it cancelled;
// otherwise all-terminal children (completed or skipped) make it completed.
// A mix of pending and terminal children means work is still in flight.
func Aggregate(children ...Status) Status {
	if len(children) == 0 {
		return Pending
	}

	var anyRunning, anyFailed, anyCancelled, anyPending bool
	for _, c := range children {
		switch c {
		case Running:
			anyRunning = true
		case Failed:
			anyFailed = true
		case Cancelled:
			anyCancelled = true
		case Pending:
			anyPending = true
		}
	}

	switch {
	case anyRunning:
		return Running
	case anyFailed:
		return Failed
	case anyCancelled:
		return Cancelled
	case !anyPending:
		return Completed
	default:
		// No child has started failing or running but some are still
		// pending. All pending means nothing started yet.
		allPending := true
		for _, c := range children {
			if c != Pending {
				allPending = false
				break
			}
		}
		if allPending {
			return Pending
		}
		return Running
	}
}
