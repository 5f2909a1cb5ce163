package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/engine"
	"opsbridge/console/internal/ident"
	"opsbridge/console/internal/models"
	"opsbridge/console/internal/store"
)

// Handler contains API handlers
type Handler struct {
	store       *store.Store
	coordinator *engine.Coordinator
	registry    *connector.Registry
}

// NewHandler creates a new API handler
func NewHandler(s *store.Store, coord *engine.Coordinator, registry *connector.Registry) *Handler {
	return &Handler{
		store:       s,
		coordinator: coord,
		registry:    registry,
	}
}

// GetDashboardStats returns dashboard statistics
func (h *Handler) GetDashboardStats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ActionRequest is one step of a job creation request.
type ActionRequest struct {
	Type           string                 `json:"type"`
	Name           string                 `json:"name"`
	Params         map[string]interface{} `json:"params"`
	TimeoutSeconds int64                  `json:"timeout_seconds"`
}

// CreateJobRequest represents job creation request
type CreateJobRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	FailurePolicy   string          `json:"failure_policy"`
	TimeoutSeconds  int64           `json:"timeout_seconds"`
	MaxRetries      int32           `json:"max_retries"`
	DesiredProtocol string          `json:"desired_protocol"`
	Actions         []ActionRequest `json:"actions"`
	TargetIDs       []string        `json:"target_ids"`
}

func (r CreateJobRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.FailurePolicy, validation.In("", "stop", "continue")),
		validation.Field(&r.Actions, validation.Required.Error("at least one action is required")),
		validation.Field(&r.TargetIDs, validation.Required.Error("at least one target is required")),
	)
}

func (r ActionRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required,
			validation.In("command", "query", "snmp-get", "snmp-set", "http-call", "mail")),
		validation.Field(&r.Name, validation.Required),
	)
}

// CreateJob creates a new job with its ordered actions and target set.
func (h *Handler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, action := range req.Actions {
		if err := action.validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	for _, targetID := range req.TargetIDs {
		if _, err := h.store.GetTarget(targetID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown target: " + targetID})
			return
		}
	}

	if req.FailurePolicy == "" {
		req.FailurePolicy = "stop"
	}

	jobNum, err := h.coordinator.AllocateJobNumber()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job := &models.Job{
		JobNum:          jobNum,
		Name:            req.Name,
		Description:     req.Description,
		FailurePolicy:   req.FailurePolicy,
		TimeoutSeconds:  req.TimeoutSeconds,
		MaxRetries:      req.MaxRetries,
		DesiredProtocol: req.DesiredProtocol,
	}

	actions := make([]models.Action, 0, len(req.Actions))
	for _, a := range req.Actions {
		params := "{}"
		if a.Params != nil {
			data, err := json.Marshal(a.Params)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			params = string(data)
		}
		actions = append(actions, models.Action{
			Type:           a.Type,
			Name:           a.Name,
			Params:         params,
			TimeoutSeconds: a.TimeoutSeconds,
		})
	}

	if err := h.store.CreateJob(job, actions, req.TargetIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	created, err := h.store.GetJob(job.JobNum)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListJobs returns a list of jobs
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, total, err := h.store.ListJobs(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob returns a single job
func (h *Handler) GetJob(c *gin.Context) {
	jobNum, err := strconv.Atoi(c.Param("num"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job number"})
		return
	}

	job, err := h.store.GetJob(jobNum)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// UpdateJobRequest carries definition edits for a job that has not run yet.
type UpdateJobRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateJob edits a job definition; frozen once the job has executed.
func (h *Handler) UpdateJob(c *gin.Context) {
	jobNum, err := strconv.Atoi(c.Param("num"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job number"})
		return
	}

	var req UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.store.GetJob(jobNum)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if req.Name != "" {
		job.Name = req.Name
	}
	job.Description = req.Description

	if err := h.store.UpdateJob(job); err != nil {
		if errors.Is(err, store.ErrJobFrozen) {
			c.JSON(http.StatusConflict, gin.H{"error": "job has been executed and can no longer be edited"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ExecuteJob launches a new execution of a job (fire-and-forget).
func (h *Handler) ExecuteJob(c *gin.Context) {
	jobNum, err := strconv.Atoi(c.Param("num"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job number"})
		return
	}

	handle, err := h.coordinator.StartExecution(c.Request.Context(), jobNum)
	if err != nil {
		var valErr *engine.ValidationError
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"execution_id": handle.ID()})
}

// ListExecutions returns a job's executions, newest first.
func (h *Handler) ListExecutions(c *gin.Context) {
	jobNum, err := strconv.Atoi(c.Param("num"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job number"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	execs, total, err := h.store.ListExecutions(jobNum, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"executions": execs,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func executionID(c *gin.Context) (ident.ID, bool) {
	id, err := ident.Parse(c.Param("id"))
	if err != nil || id.Depth() != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution identifier, expected J<n>.E<n>"})
		return ident.ID{}, false
	}
	return id, true
}

// GetExecution returns an execution with its branches.
func (h *Handler) GetExecution(c *gin.Context) {
	id, ok := executionID(c)
	if !ok {
		return
	}

	exec, err := h.store.GetExecution(id.Job, id.Exec)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// GetBranchResults returns a branch's action results in ordinal order.
func (h *Handler) GetBranchResults(c *gin.Context) {
	id, ok := executionID(c)
	if !ok {
		return
	}
	branchIdx, err := strconv.Atoi(c.Param("branch"))
	if err != nil || branchIdx < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch index"})
		return
	}

	results, err := h.store.GetBranchResults(id.Job, id.Exec, branchIdx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// CancelExecution requests a cooperative stop of an in-flight execution.
func (h *Handler) CancelExecution(c *gin.Context) {
	id, ok := executionID(c)
	if !ok {
		return
	}

	if err := h.coordinator.Cancel(id.Job, id.Exec); err != nil {
		if errors.Is(err, engine.ErrExecutionNotRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "execution is not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// SearchResults answers identifier/status/free-text queries over action
// results with pagination.
func (h *Handler) SearchResults(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, total, err := h.store.Search(store.Query{
		Pattern: c.Query("pattern"),
		Status:  c.Query("status"),
		Text:    c.Query("q"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	type searchHit struct {
		ID string `json:"id"`
		models.ActionResult
	}
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{ID: r.Ident().String(), ActionResult: r})
	}

	c.JSON(http.StatusOK, gin.H{
		"results": hits,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// MethodRequest is one communication method in a target creation request.
type MethodRequest struct {
	Protocol      string                 `json:"protocol"`
	Host          string                 `json:"host"`
	Port          int                    `json:"port"`
	CredentialRef string                 `json:"credential_ref"`
	Settings      map[string]interface{} `json:"settings"`
}

// CreateTargetRequest represents target creation request
type CreateTargetRequest struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Methods     []MethodRequest `json:"methods"`
}

func (r CreateTargetRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Type, validation.Required,
			validation.In("linux", "windows", "network", "database", "snmp", "mail", "local")),
		validation.Field(&r.Methods, validation.Required.Error("at least one communication method is required")),
	)
}

// CreateTarget registers a target with its communication methods.
func (h *Handler) CreateTarget(c *gin.Context) {
	var req CreateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := &models.Target{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
	}
	for _, m := range req.Methods {
		settings := "{}"
		if m.Settings != nil {
			data, err := json.Marshal(m.Settings)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			settings = string(data)
		}
		target.Methods = append(target.Methods, models.CommunicationMethod{
			Protocol:      m.Protocol,
			Host:          m.Host,
			Port:          m.Port,
			CredentialRef: m.CredentialRef,
			Settings:      settings,
		})
	}

	if err := h.store.CreateTarget(target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, target)
}

// ListTargets returns all targets
func (h *Handler) ListTargets(c *gin.Context) {
	targets, err := h.store.ListTargets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, targets)
}

// GetTarget returns a single target
func (h *Handler) GetTarget(c *gin.Context) {
	target, err := h.store.GetTarget(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}
	c.JSON(http.StatusOK, target)
}

// TestTarget opens a connection to the target and reports a fail-fast
// diagnostic without running a job.
func (h *Handler) TestTarget(c *gin.Context) {
	target, err := h.store.GetTarget(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}

	conn, method, err := h.registry.Resolve(target, c.Query("protocol"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := conn.TestConnection(ctx); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"ok":       false,
			"protocol": method.Protocol,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "protocol": method.Protocol})
}
