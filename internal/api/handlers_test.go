package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"opsbridge/console/internal/config"
	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/engine"
	"opsbridge/console/internal/ident"
	"opsbridge/console/internal/models"
	"opsbridge/console/internal/secrets"
	"opsbridge/console/internal/status"
	"opsbridge/console/internal/store"
	"opsbridge/console/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeConn struct{}

func (fakeConn) Execute(_ context.Context, act connector.Action) (connector.Outcome, error) {
	if act.Command == "fail" {
		return connector.Outcome{ExitCode: 1, ErrOutput: "boom"}, nil
	}
	return connector.Outcome{Output: "ran " + act.Command}, nil
}
func (fakeConn) TestConnection(context.Context) error { return nil }
func (fakeConn) Close() error                         { return nil }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	s := store.NewStore(db)
	registry := connector.NewRegistry(secrets.NewStaticProvider(nil))
	registry.Register("fake", func(connector.Endpoint, secrets.Credential) (connector.Connector, error) {
		return fakeConn{}, nil
	})

	cfg := config.EngineConfig{
		MaxConcurrentBranches: 4,
		ActionTimeoutSeconds:  10,
		MaxRetries:            1,
	}
	hub := websocket.NewHub()
	go hub.Run()
	coord := engine.NewCoordinator(s, registry, ident.NewAllocator(s), cfg, hub, zerolog.Nop())

	return NewServer(s, coord, registry, hub), s
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createFakeTarget(t *testing.T, srv *Server, name string) string {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/v1/targets", map[string]interface{}{
		"name": name,
		"type": "linux",
		"methods": []map[string]interface{}{
			{"protocol": "fake", "host": name, "port": 1},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)["id"].(string)
}

func createJob(t *testing.T, srv *Server, targetIDs ...string) int {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name": "nightly maintenance",
		"actions": []map[string]interface{}{
			{"type": "command", "name": "restart", "params": map[string]string{"command": "systemctl restart app"}},
			{"type": "command", "name": "verify", "params": map[string]string{"command": "curl localhost"}},
		},
		"target_ids": targetIDs,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int(decodeBody(t, w)["job_num"].(float64))
}

func waitTerminal(t *testing.T, srv *Server, executionID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, srv, http.MethodGet, "/api/v1/executions/"+executionID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		if status.Status(body["status"].(string)).IsTerminal() {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached a terminal status", executionID)
	return nil
}

func TestJobLifecycleRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	targetID := createFakeTarget(t, srv, "web1")
	jobNum := createJob(t, srv, targetID)
	assert.Equal(t, 1, jobNum)

	w := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/execute", jobNum), nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	executionID := decodeBody(t, w)["execution_id"].(string)
	assert.Equal(t, "J1.E1", executionID)

	exec := waitTerminal(t, srv, executionID)
	assert.Equal(t, "completed", exec["status"])
	branches := exec["branches"].([]interface{})
	require.Len(t, branches, 1)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/executions/J1.E1/branches/1/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decodeBody(t, w)["results"].([]interface{})
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "restart", first["action_name"])
	assert.Equal(t, "completed", first["status"])

	w = doJSON(t, srv, http.MethodGet, "/api/v1/jobs/1/executions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["total"])
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	targetID := createFakeTarget(t, srv, "web1")
	jobNum := createJob(t, srv, targetID)

	w := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/execute", jobNum), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitTerminal(t, srv, decodeBody(t, w)["execution_id"].(string))

	w = doJSON(t, srv, http.MethodGet, "/api/v1/results/search?pattern=J1.*", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["total"])
	hits := body["results"].([]interface{})
	assert.Equal(t, "J1.E1.B1.A1", hits[0].(map[string]interface{})["id"])

	w = doJSON(t, srv, http.MethodGet, "/api/v1/results/search?q=systemctl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["total"])

	w = doJSON(t, srv, http.MethodGet, "/api/v1/results/search?pattern=garbage!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateJobValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	targetID := createFakeTarget(t, srv, "web1")

	// No actions.
	w := doJSON(t, srv, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name":       "empty",
		"target_ids": []string{targetID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown action type.
	w = doJSON(t, srv, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name": "bad type",
		"actions": []map[string]interface{}{
			{"type": "teleport", "name": "x"},
		},
		"target_ids": []string{targetID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown target.
	w = doJSON(t, srv, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name": "bad target",
		"actions": []map[string]interface{}{
			{"type": "command", "name": "x", "params": map[string]string{"command": "true"}},
		},
		"target_ids": []string{"missing-id"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown target")
}

func TestUpdateJobConflictAfterExecution(t *testing.T) {
	srv, _ := newTestServer(t)
	targetID := createFakeTarget(t, srv, "web1")
	jobNum := createJob(t, srv, targetID)

	w := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/jobs/%d", jobNum), map[string]interface{}{
		"description": "still editable",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/execute", jobNum), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitTerminal(t, srv, decodeBody(t, w)["execution_id"].(string))

	w = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/jobs/%d", jobNum), map[string]interface{}{
		"description": "too late",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExecutionIdentifierParsing(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/executions/J1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/executions/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/executions/J9.E9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelWithoutRunningExecution(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/executions/J1.E1/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTargetEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	targetID := createFakeTarget(t, srv, "web1")

	w := doJSON(t, srv, http.MethodGet, "/api/v1/targets", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/targets/"+targetID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "web1", decodeBody(t, w)["name"])

	w = doJSON(t, srv, http.MethodGet, "/api/v1/targets/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/v1/targets/"+targetID+"/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "fake", body["protocol"])
}

func TestCreateTargetValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/targets", map[string]interface{}{
		"name": "no methods",
		"type": "linux",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/v1/targets", map[string]interface{}{
		"name": "bad type",
		"type": "mainframe",
		"methods": []map[string]interface{}{
			{"protocol": "fake", "host": "h", "port": 1},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "executions")
	assert.Contains(t, body, "jobs")
}
