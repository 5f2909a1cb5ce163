package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"opsbridge/console/internal/models"
	"opsbridge/console/internal/status"
)

// Store persists job definitions, executions, branches and action results
// and answers the console's query surface over them.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store instance
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for request-scoped queries in handlers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateJob persists a job with its actions and target references in one
// transaction. Action ordinals are assigned here: 1-based, contiguous,
// in the given order.
func (s *Store) CreateJob(job *models.Job, actions []models.Action, targetIDs []string) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		for i := range actions {
			actions[i].JobNum = job.JobNum
			actions[i].Ordinal = i + 1
			actions[i].CreatedAt = now
		}
		if len(actions) > 0 {
			if err := tx.Create(&actions).Error; err != nil {
				return fmt.Errorf("failed to create actions: %w", err)
			}
		}
		for _, targetID := range targetIDs {
			link := models.JobTarget{JobNum: job.JobNum, TargetID: targetID}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("failed to link target %s: %w", targetID, err)
			}
		}
		return nil
	})
}

// GetJob returns a job with its actions (ordinal order) and targets.
func (s *Store) GetJob(jobNum int) (*models.Job, error) {
	var job models.Job
	err := s.db.
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal ASC") }).
		Preload("Targets.Target.Methods").
		First(&job, "job_num = ?", jobNum).Error
	if err != nil {
		return nil, fmt.Errorf("job not found: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs with pagination, newest first.
func (s *Store) ListJobs(limit, offset int) ([]models.Job, int64, error) {
	var jobs []models.Job
	var total int64

	query := s.db.Model(&models.Job{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	if err := query.Order("job_num DESC").Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

// ErrJobFrozen is returned when a job that has already run is edited.
var ErrJobFrozen = fmt.Errorf("job has been executed and is frozen")

// UpdateJob applies definition changes, rejected once the job has run.
func (s *Store) UpdateJob(job *models.Job) error {
	var current models.Job
	if err := s.db.First(&current, "job_num = ?", job.JobNum).Error; err != nil {
		return fmt.Errorf("job not found: %w", err)
	}
	if current.ExecutionCount > 0 {
		return ErrJobFrozen
	}
	job.UpdatedAt = time.Now()
	if err := s.db.Save(job).Error; err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// MarkJobExecuted bumps the execution counter, freezing the definition.
func (s *Store) MarkJobExecuted(jobNum int) error {
	return s.db.Model(&models.Job{}).
		Where("job_num = ?", jobNum).
		UpdateColumn("execution_count", gorm.Expr("execution_count + 1")).Error
}

// CreateTarget persists a target with its communication methods.
func (s *Store) CreateTarget(target *models.Target) error {
	now := time.Now()
	target.CreatedAt = now
	target.UpdatedAt = now
	if err := s.db.Create(target).Error; err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	return nil
}

// GetTarget returns a target with its methods.
func (s *Store) GetTarget(id string) (*models.Target, error) {
	var target models.Target
	if err := s.db.Preload("Methods").First(&target, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("target not found: %w", err)
	}
	return &target, nil
}

// ListTargets returns all targets with their methods.
func (s *Store) ListTargets() ([]models.Target, error) {
	var targets []models.Target
	if err := s.db.Preload("Methods").Order("name ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

// CreateExecution persists an execution and all of its branches atomically.
func (s *Store) CreateExecution(exec *models.Execution, branches []models.Branch) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exec).Error; err != nil {
			return fmt.Errorf("failed to create execution: %w", err)
		}
		if len(branches) > 0 {
			if err := tx.Create(&branches).Error; err != nil {
				return fmt.Errorf("failed to create branches: %w", err)
			}
		}
		return nil
	})
}

// UpdateExecutionStatus writes an in-flight status change.
func (s *Store) UpdateExecutionStatus(jobNum, execNum int, st status.Status) error {
	return s.db.Model(&models.Execution{}).
		Where("job_num = ? AND exec_num = ?", jobNum, execNum).
		Update("status", string(st)).Error
}

// MarkExecutionCancelRequested flags the execution so restarts and readers
// see the pending cancellation.
func (s *Store) MarkExecutionCancelRequested(jobNum, execNum int) error {
	return s.db.Model(&models.Execution{}).
		Where("job_num = ? AND exec_num = ?", jobNum, execNum).
		Update("cancelled", true).Error
}

// FinishExecution writes the terminal status and rolled-up target counts.
func (s *Store) FinishExecution(jobNum, execNum int, st status.Status, succeeded, failed int) error {
	now := time.Now()
	return s.db.Model(&models.Execution{}).
		Where("job_num = ? AND exec_num = ?", jobNum, execNum).
		Updates(map[string]interface{}{
			"status":    string(st),
			"succeeded": succeeded,
			"failed":    failed,
			"ended_at":  now,
		}).Error
}

// UpdateBranch writes a branch status transition.
func (s *Store) UpdateBranch(branch *models.Branch) error {
	return s.db.Model(&models.Branch{}).
		Where("job_num = ? AND exec_num = ? AND branch_idx = ?", branch.JobNum, branch.ExecNum, branch.BranchIdx).
		Updates(map[string]interface{}{
			"status":     branch.Status,
			"protocol":   branch.Protocol,
			"error":      branch.Error,
			"started_at": branch.StartedAt,
			"ended_at":   branch.EndedAt,
		}).Error
}

// AppendActionResult inserts a new action result row.
func (s *Store) AppendActionResult(result *models.ActionResult) error {
	if err := s.db.Create(result).Error; err != nil {
		return fmt.Errorf("failed to append action result: %w", err)
	}
	return nil
}

// FinalizeActionResult writes the outcome of a started action. The row is
// never touched again once the branch moves past the action.
func (s *Store) FinalizeActionResult(result *models.ActionResult) error {
	return s.db.Model(&models.ActionResult{}).
		Where("job_num = ? AND exec_num = ? AND branch_idx = ? AND action_idx = ?",
			result.JobNum, result.ExecNum, result.BranchIdx, result.ActionIdx).
		Updates(map[string]interface{}{
			"status":      result.Status,
			"exit_code":   result.ExitCode,
			"output":      result.Output,
			"err_output":  result.ErrOutput,
			"error":       result.Error,
			"ended_at":    result.EndedAt,
			"duration_ms": result.DurationMS,
		}).Error
}

// GetExecution returns an execution with its branches ordered by index.
func (s *Store) GetExecution(jobNum, execNum int) (*models.Execution, error) {
	var exec models.Execution
	err := s.db.
		Preload("Branches", func(db *gorm.DB) *gorm.DB { return db.Order("branch_idx ASC") }).
		First(&exec, "job_num = ? AND exec_num = ?", jobNum, execNum).Error
	if err != nil {
		return nil, fmt.Errorf("execution not found: %w", err)
	}
	return &exec, nil
}

// ListExecutions returns a job's executions, newest first.
func (s *Store) ListExecutions(jobNum int, limit, offset int) ([]models.Execution, int64, error) {
	var execs []models.Execution
	var total int64

	query := s.db.Model(&models.Execution{}).Where("job_num = ?", jobNum)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}
	if err := query.Order("exec_num DESC").Limit(limit).Offset(offset).Find(&execs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	return execs, total, nil
}

// GetBranchResults returns a branch's action results in ordinal order.
func (s *Store) GetBranchResults(jobNum, execNum, branchIdx int) ([]models.ActionResult, error) {
	var results []models.ActionResult
	err := s.db.
		Where("job_num = ? AND exec_num = ? AND branch_idx = ?", jobNum, execNum, branchIdx).
		Order("action_idx ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load branch results: %w", err)
	}
	return results, nil
}
