package models

import (
	"time"

	"opsbridge/console/internal/ident"
)

// Execution is one run of a job. Its status is always the aggregate of its
// branch statuses, never set independently.
type Execution struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	JobNum       int        `gorm:"not null;uniqueIndex:idx_job_exec,priority:1" json:"job_num"`
	ExecNum      int        `gorm:"not null;uniqueIndex:idx_job_exec,priority:2" json:"exec_num"`
	Status       string     `gorm:"not null;type:varchar(20);default:'pending';index" json:"status"`
	TotalTargets int        `gorm:"default:0" json:"total_targets"`
	Succeeded    int        `gorm:"default:0" json:"succeeded"`
	Failed       int        `gorm:"default:0" json:"failed"`
	Cancelled    bool       `gorm:"default:false" json:"cancelled"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	EndedAt      *time.Time `json:"ended_at"`

	Branches []Branch `gorm:"foreignKey:JobNum,ExecNum;references:JobNum,ExecNum" json:"branches,omitempty"`
}

func (Execution) TableName() string {
	return "executions"
}

// Ident returns the hierarchical identifier of the execution.
func (e Execution) Ident() ident.ID {
	return ident.ID{Job: e.JobNum, Exec: e.ExecNum}
}

// Branch is the per-target sub-run of an execution: one branch per
// (execution, target) pair, created atomically with the execution.
type Branch struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	JobNum     int        `gorm:"not null;uniqueIndex:idx_exec_branch,priority:1" json:"job_num"`
	ExecNum    int        `gorm:"not null;uniqueIndex:idx_exec_branch,priority:2" json:"exec_num"`
	BranchIdx  int        `gorm:"not null;uniqueIndex:idx_exec_branch,priority:3" json:"branch_idx"`
	TargetID   string     `gorm:"not null;type:varchar(36);index" json:"target_id"`
	TargetName string     `gorm:"type:varchar(255)" json:"target_name"` // snapshot at launch time
	Protocol   string     `gorm:"type:varchar(50)" json:"protocol"`
	Status     string     `gorm:"not null;type:varchar(20);default:'pending';index" json:"status"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`

	Results []ActionResult `gorm:"foreignKey:JobNum,ExecNum,BranchIdx;references:JobNum,ExecNum,BranchIdx" json:"results,omitempty"`
}

func (Branch) TableName() string {
	return "branches"
}

// Ident returns the hierarchical identifier of the branch.
func (b Branch) Ident() ident.ID {
	return ident.ID{Job: b.JobNum, Exec: b.ExecNum, Branch: b.BranchIdx}
}

// ActionResult is the recorded outcome of one action within one branch.
// Rows are append-only; a result is never edited once the branch has moved
// past its action.
type ActionResult struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	JobNum     int        `gorm:"not null;uniqueIndex:idx_branch_action,priority:1" json:"job_num"`
	ExecNum    int        `gorm:"not null;uniqueIndex:idx_branch_action,priority:2" json:"exec_num"`
	BranchIdx  int        `gorm:"not null;uniqueIndex:idx_branch_action,priority:3" json:"branch_idx"`
	ActionIdx  int        `gorm:"not null;uniqueIndex:idx_branch_action,priority:4" json:"action_idx"`
	ActionName string     `gorm:"type:varchar(255)" json:"action_name"`
	Command    string     `gorm:"type:text" json:"command"` // snapshot of the executed command/query
	Status     string     `gorm:"not null;type:varchar(20);index" json:"status"`
	ExitCode   *int32     `json:"exit_code"`
	Output     string     `gorm:"type:text" json:"output"`
	ErrOutput  string     `gorm:"type:text" json:"err_output"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
	DurationMS int64      `gorm:"default:0" json:"duration_ms"`
}

func (ActionResult) TableName() string {
	return "action_results"
}

// Ident returns the hierarchical identifier of the action result.
func (r ActionResult) Ident() ident.ID {
	return ident.ID{Job: r.JobNum, Exec: r.ExecNum, Branch: r.BranchIdx, Action: r.ActionIdx}
}
