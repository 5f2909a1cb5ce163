package models

import (
	"time"

	"gorm.io/gorm"
)

// Job is a reusable, ordered list of actions plus a target set. A job is
// frozen once its first execution starts; edits after that are rejected.
type Job struct {
	JobNum          int       `gorm:"primaryKey;autoIncrement:false" json:"job_num"`
	Name            string    `gorm:"not null;type:varchar(255)" json:"name"`
	Description     string    `gorm:"type:text" json:"description"`
	FailurePolicy   string    `gorm:"not null;type:varchar(20);default:'stop'" json:"failure_policy"` // stop, continue
	TimeoutSeconds  int64     `gorm:"default:0" json:"timeout_seconds"`                               // per-action default, 0 = engine default
	MaxRetries      int32     `gorm:"default:0" json:"max_retries"`                                   // transient connector errors only
	DesiredProtocol string    `gorm:"type:varchar(50)" json:"desired_protocol"`                       // preferred communication method, empty = first supported
	ExecutionCount  int       `gorm:"default:0" json:"execution_count"`
	CreatedBy       string    `gorm:"type:varchar(255)" json:"created_by"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	Actions []Action    `gorm:"foreignKey:JobNum" json:"actions,omitempty"`
	Targets []JobTarget `gorm:"foreignKey:JobNum" json:"targets,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// Action is one ordinal step of a job. Ordinals are 1-based and contiguous
// within a job, assigned at creation and never changed.
type Action struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobNum    int       `gorm:"not null;index;uniqueIndex:idx_job_ordinal,priority:1" json:"job_num"`
	Ordinal   int       `gorm:"not null;uniqueIndex:idx_job_ordinal,priority:2" json:"ordinal"`
	Type      string    `gorm:"not null;type:varchar(50)" json:"type"` // command, query, snmp-get, snmp-set, http-call, mail
	Name      string    `gorm:"not null;type:varchar(255)" json:"name"`
	Params    string    `gorm:"type:jsonb" json:"params"` // type-specific parameters as JSON
	TimeoutSeconds int64 `gorm:"default:0" json:"timeout_seconds"` // overrides the job default when > 0
	CreatedAt time.Time `json:"created_at"`
}

func (Action) TableName() string {
	return "actions"
}

// JobTarget links a job to a member of its target set.
type JobTarget struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	JobNum   int    `gorm:"not null;index" json:"job_num"`
	TargetID string `gorm:"not null;type:varchar(36);index" json:"target_id"`

	Target Target `gorm:"foreignKey:TargetID" json:"target,omitempty"`
}

func (JobTarget) TableName() string {
	return "job_targets"
}
