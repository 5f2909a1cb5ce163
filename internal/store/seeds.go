package store

import (
	"opsbridge/console/internal/models"
)

// The store is the allocator's seed source: counters restart from the
// highest persisted child number so identifiers are never reused.

func (s *Store) MaxJobNumber() (int, error) {
	var max int
	err := s.db.Model(&models.Job{}).
		Select("COALESCE(MAX(job_num), 0)").Scan(&max).Error
	return max, err
}

func (s *Store) MaxExecutionNumber(job int) (int, error) {
	var max int
	err := s.db.Model(&models.Execution{}).
		Where("job_num = ?", job).
		Select("COALESCE(MAX(exec_num), 0)").Scan(&max).Error
	return max, err
}

func (s *Store) MaxBranchIndex(job, exec int) (int, error) {
	var max int
	err := s.db.Model(&models.Branch{}).
		Where("job_num = ? AND exec_num = ?", job, exec).
		Select("COALESCE(MAX(branch_idx), 0)").Scan(&max).Error
	return max, err
}

func (s *Store) MaxActionResultIndex(job, exec, branch int) (int, error) {
	var max int
	err := s.db.Model(&models.ActionResult{}).
		Where("job_num = ? AND exec_num = ? AND branch_idx = ?", job, exec, branch).
		Select("COALESCE(MAX(action_idx), 0)").Scan(&max).Error
	return max, err
}
