package store

import (
	"fmt"

	"gorm.io/gorm"

	"opsbridge/console/internal/ident"
	"opsbridge/console/internal/models"
)

// Query describes one search over the result store. Pattern is an exact
// identifier or a hierarchical wildcard ("J7.E3.B2.A4", "J7.*", "*.B2.*");
// Text matches against action name, command and captured output.
type Query struct {
	Pattern string
	Status  string
	Text    string
	Limit   int
	Offset  int
}

// Search answers identifier, status and free-text queries over action
// results with pagination. Identifier components are stored as columns, so
// wildcard lookups are plain per-column filters without a join.
func (s *Store) Search(q Query) ([]models.ActionResult, int64, error) {
	db := s.db.Model(&models.ActionResult{})

	if q.Pattern != "" {
		pattern, err := ident.CompilePattern(q.Pattern)
		if err != nil {
			return nil, 0, err
		}
		db = applyPattern(db, pattern)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.Text != "" {
		needle := "%" + q.Text + "%"
		db = db.Where(
			"LOWER(action_name) LIKE LOWER(?) OR LOWER(command) LIKE LOWER(?) OR LOWER(output) LIKE LOWER(?)",
			needle, needle, needle,
		)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var results []models.ActionResult
	err := db.
		Order("job_num ASC, exec_num ASC, branch_idx ASC, action_idx ASC").
		Limit(limit).Offset(q.Offset).
		Find(&results).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search results: %w", err)
	}
	return results, total, nil
}

func applyPattern(db *gorm.DB, p ident.Pattern) *gorm.DB {
	if p.Job != nil {
		db = db.Where("job_num = ?", p.Job.Value)
	}
	if p.Exec != nil {
		db = db.Where("exec_num = ?", p.Exec.Value)
	}
	if p.Branch != nil {
		db = db.Where("branch_idx = ?", p.Branch.Value)
	}
	if p.Action != nil {
		db = db.Where("action_idx = ?", p.Action.Value)
	}
	return db
}

// Stats returns execution and branch counts by status for the dashboard.
func (s *Store) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	statuses := []string{"pending", "running", "completed", "failed", "cancelled"}

	execCounts := make(map[string]int64)
	for _, st := range statuses {
		var count int64
		s.db.Model(&models.Execution{}).Where("status = ?", st).Count(&count)
		execCounts[st] = count
	}
	stats["executions"] = execCounts

	branchCounts := make(map[string]int64)
	for _, st := range statuses {
		var count int64
		s.db.Model(&models.Branch{}).Where("status = ?", st).Count(&count)
		branchCounts[st] = count
	}
	stats["branches"] = branchCounts

	var jobCount, targetCount int64
	s.db.Model(&models.Job{}).Count(&jobCount)
	s.db.Model(&models.Target{}).Count(&targetCount)
	stats["jobs"] = jobCount
	stats["targets"] = targetCount

	return stats, nil
}
