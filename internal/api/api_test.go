package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"braindrived/internal/api"
	"braindrived/internal/db"
	"braindrived/internal/keeper"
	"braindrived/internal/pipeline"
	"braindrived/internal/ports"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	runs    int
	updates int
	lastCtx context.Context
	err     error
}

func (f *fakeRunner) Run(ctx context.Context) (*pipeline.State, error) {
	f.mu.Lock()
	f.runs++
	f.lastCtx = ctx
	f.mu.Unlock()
	return &pipeline.State{}, f.err
}

func (f *fakeRunner) Update(ctx context.Context) (*pipeline.State, error) {
	f.mu.Lock()
	f.updates++
	f.lastCtx = ctx
	f.mu.Unlock()
	return &pipeline.State{}, f.err
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeRunner) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *fakeRunner) runContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx
}

type fakeServices struct {
	states   map[keeper.Role]keeper.State
	startErr error
	stopped  []keeper.Role
}

func (f *fakeServices) Start(role keeper.Role) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.states[role] = keeper.Running
	return nil
}

func (f *fakeServices) Stop(role keeper.Role) error {
	f.stopped = append(f.stopped, role)
	f.states[role] = keeper.Stopped
	return nil
}

func (f *fakeServices) Status(role keeper.Role) keeper.State { return f.states[role] }
func (f *fakeServices) ExitCode(role keeper.Role) int        { return 3 }
func (f *fakeServices) Tail(role keeper.Role) string         { return "service output tail" }

type harness struct {
	router   *gin.Engine
	runner   *fakeRunner
	services *fakeServices
	server   *api.Server
}

func setup(t *testing.T, st *pipeline.State) *harness {
	gin.SetMode(gin.TestMode)

	statePath := filepath.Join(t.TempDir(), "install.yml")
	if st != nil {
		if err := st.Save(statePath); err != nil {
			t.Fatalf("Failed to seed state: %v", err)
		}
	}

	h := &harness{
		runner: &fakeRunner{},
		services: &fakeServices{states: map[keeper.Role]keeper.State{
			keeper.RoleBackend:  keeper.Stopped,
			keeper.RoleFrontend: keeper.Stopped,
		}},
	}

	events := func(limit int) ([]db.Event, error) {
		return []db.Event{{ID: 1, Stage: "probe", Status: "succeeded"}}, nil
	}
	server := api.NewServer(h.runner, h.services, events, statePath)
	h.server = server

	r := gin.New()
	r.GET("/health", api.HealthCheckHandler)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", server.StatusHandler)
		v1.GET("/events", server.EventsHandler)
		v1.POST("/install", server.InstallHandler)
		v1.POST("/update", server.UpdateHandler)
		v1.POST("/services/:role/start", server.ServiceStartHandler)
		v1.POST("/services/:role/stop", server.ServiceStopHandler)
		v1.GET("/services/:role/log", server.ServiceLogHandler)
	}

	h.router = r
	return h
}

func (h *harness) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	h.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	h := setup(t, nil)
	w := h.do("GET", "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestStatus(t *testing.T) {
	h := setup(t, &pipeline.State{
		RuntimeProvisioned:    true,
		EnvironmentReady:      true,
		RepoCloned:            true,
		DependenciesInstalled: true,
		Ports:                 ports.Pair{Backend: 8005, Frontend: 5173},
	})
	h.services.states[keeper.RoleBackend] = keeper.Running

	w := h.do("GET", "/api/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.StatusResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Complete)
	assert.False(t, resp.Installing)
	assert.Equal(t, 8005, resp.Ports.Backend)
	assert.Len(t, resp.Services, 2)
	assert.Equal(t, "backend", resp.Services[0].Role)
	assert.Equal(t, "running", resp.Services[0].State)
	assert.Equal(t, 8005, resp.Services[0].Port)
	assert.Equal(t, "stopped", resp.Services[1].State)
}

func TestStatusFailedServiceCarriesExitCode(t *testing.T) {
	h := setup(t, &pipeline.State{Ports: ports.Pair{Backend: 8005, Frontend: 5173}})
	h.services.states[keeper.RoleBackend] = keeper.Failed

	w := h.do("GET", "/api/v1/status")
	var resp api.StatusResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Services[0].State)
	assert.Equal(t, 3, resp.Services[0].ExitCode)
}

func TestStatusFreshMachine(t *testing.T) {
	h := setup(t, nil) // no state file yet

	w := h.do("GET", "/api/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.StatusResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Complete)
}

func TestInstall(t *testing.T) {
	h := setup(t, nil)

	w := h.do("POST", "/api/v1/install")
	assert.Equal(t, http.StatusAccepted, w.Code)

	// The run is dispatched in the background.
	deadline := time.Now().Add(2 * time.Second)
	for h.runner.runCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, h.runner.runCount())
}

// Background install runs inherit the server's lifecycle context, so a
// daemon shutdown cancels their subprocesses.
func TestInstallUsesLifecycleContext(t *testing.T) {
	h := setup(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.server.BaseCtx = ctx

	w := h.do("POST", "/api/v1/install")
	assert.Equal(t, http.StatusAccepted, w.Code)

	deadline := time.Now().Add(2 * time.Second)
	for h.runner.runCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	got := h.runner.runContext()
	assert.NotNil(t, got)
	assert.ErrorIs(t, got.Err(), context.Canceled)
}

func TestUpdate(t *testing.T) {
	h := setup(t, nil)

	w := h.do("POST", "/api/v1/update")
	assert.Equal(t, http.StatusAccepted, w.Code)

	deadline := time.Now().Add(2 * time.Second)
	for h.runner.updateCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, h.runner.updateCount())
	assert.Equal(t, 0, h.runner.runCount())
}

func TestUpdateConflict(t *testing.T) {
	h := setup(t, nil)
	h.runner.running = true

	w := h.do("POST", "/api/v1/update")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, h.runner.updateCount())
}

func TestInstallConflict(t *testing.T) {
	h := setup(t, nil)
	h.runner.running = true

	w := h.do("POST", "/api/v1/install")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, h.runner.runCount())
}

func TestEvents(t *testing.T) {
	h := setup(t, nil)

	w := h.do("GET", "/api/v1/events")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "probe")
}

func TestServiceStart(t *testing.T) {
	h := setup(t, nil)

	w := h.do("POST", "/api/v1/services/backend/start")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, keeper.Running, h.services.states[keeper.RoleBackend])
}

func TestServiceStartConflict(t *testing.T) {
	h := setup(t, nil)
	h.services.startErr = keeper.ErrAlreadyRunning

	w := h.do("POST", "/api/v1/services/backend/start")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServiceStop(t *testing.T) {
	h := setup(t, nil)

	w := h.do("POST", "/api/v1/services/frontend/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []keeper.Role{keeper.RoleFrontend}, h.services.stopped)
}

func TestServiceLog(t *testing.T) {
	h := setup(t, nil)

	w := h.do("GET", "/api/v1/services/backend/log")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "service output tail")
}

func TestUnknownRole(t *testing.T) {
	h := setup(t, nil)

	for _, path := range []string{
		"/api/v1/services/database/start",
		"/api/v1/services/database/stop",
		"/api/v1/services/database/log",
	} {
		method := "POST"
		if path[len(path)-3:] == "log" {
			method = "GET"
		}
		w := h.do(method, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}
