// Package api exposes the loopback control surface consumed by the GUI
// and CLI front ends: install progress, service lifecycle, event history.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"braindrived/internal/db"
	"braindrived/internal/keeper"
	"braindrived/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// InstallRunner runs the installation pipeline. Update pulls the latest
// application source and refreshes dependencies.
type InstallRunner interface {
	Run(ctx context.Context) (*pipeline.State, error)
	Update(ctx context.Context) (*pipeline.State, error)
	Running() bool
}

// ServiceController is the supervisor surface the API needs.
type ServiceController interface {
	Start(role keeper.Role) error
	Stop(role keeper.Role) error
	Status(role keeper.Role) keeper.State
	ExitCode(role keeper.Role) int
	Tail(role keeper.Role) string
}

// EventSource lists journaled events, newest first.
type EventSource func(limit int) ([]db.Event, error)

type Server struct {
	runner    InstallRunner
	services  ServiceController
	events    EventSource
	statePath string

	// BaseCtx bounds background install/update runs, so daemon shutdown
	// cancels their subprocesses. Nil falls back to context.Background().
	BaseCtx context.Context
}

func NewServer(runner InstallRunner, services ServiceController, events EventSource, statePath string) *Server {
	return &Server{
		runner:    runner,
		services:  services,
		events:    events,
		statePath: statePath,
	}
}

func (s *Server) baseContext() context.Context {
	if s.BaseCtx != nil {
		return s.BaseCtx
	}
	return context.Background()
}

// HealthCheckHandler answers liveness probes.
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusHandler reports stage completion flags and service states.
func (s *Server) StatusHandler(c *gin.Context) {
	st, err := pipeline.LoadState(s.statePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := StatusResponse{
		Installing:            s.runner.Running(),
		RuntimeProvisioned:    st.RuntimeProvisioned,
		EnvironmentReady:      st.EnvironmentReady,
		RepoCloned:            st.RepoCloned,
		DependenciesInstalled: st.DependenciesInstalled,
		Complete:              st.Complete(),
		Ports:                 st.Ports,
	}

	for _, role := range []keeper.Role{keeper.RoleBackend, keeper.RoleFrontend} {
		svc := ServiceStatus{
			Role:  string(role),
			State: s.services.Status(role).String(),
		}
		if role == keeper.RoleBackend {
			svc.Port = st.Ports.Backend
		} else {
			svc.Port = st.Ports.Frontend
		}
		if s.services.Status(role) == keeper.Failed {
			svc.ExitCode = s.services.ExitCode(role)
		}
		resp.Services = append(resp.Services, svc)
	}

	c.JSON(http.StatusOK, resp)
}

// EventsHandler returns recent journal entries.
func (s *Server) EventsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := s.events(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// InstallHandler kicks off an installation run in the background.
func (s *Server) InstallHandler(c *gin.Context) {
	if s.runner.Running() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "installation already in progress"})
		return
	}

	ctx := s.baseContext()
	go func() {
		if _, err := s.runner.Run(ctx); err != nil {
			log.Printf("Installation failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "installing"})
}

// UpdateHandler pulls the latest application source, refreshes the
// dependencies and restarts the services, in the background.
func (s *Server) UpdateHandler(c *gin.Context) {
	if s.runner.Running() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "installation already in progress"})
		return
	}

	ctx := s.baseContext()
	go func() {
		if _, err := s.runner.Update(ctx); err != nil {
			log.Printf("Update failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "updating"})
}

// ServiceStartHandler starts one supervised service.
func (s *Server) ServiceStartHandler(c *gin.Context) {
	role, ok := parseRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown service role"})
		return
	}

	if err := s.services.Start(role); err != nil {
		if errors.Is(err, keeper.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "starting"})
}

// ServiceStopHandler stops one supervised service.
func (s *Server) ServiceStopHandler(c *gin.Context) {
	role, ok := parseRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown service role"})
		return
	}

	if err := s.services.Stop(role); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// ServiceLogHandler returns the captured output tail for one service.
func (s *Server) ServiceLogHandler(c *gin.Context) {
	role, ok := parseRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown service role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "tail": s.services.Tail(role)})
}

func parseRole(raw string) (keeper.Role, bool) {
	switch raw {
	case string(keeper.RoleBackend):
		return keeper.RoleBackend, true
	case string(keeper.RoleFrontend):
		return keeper.RoleFrontend, true
	default:
		return "", false
	}
}
