package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"braindrived/config"
	"braindrived/internal/api"
	"braindrived/internal/auth"
	"braindrived/internal/conda"
	"braindrived/internal/db"
	"braindrived/internal/deps"
	"braindrived/internal/download"
	"braindrived/internal/keeper"
	"braindrived/internal/pipeline"
	"braindrived/internal/platform"
	"braindrived/internal/ports"
	"braindrived/internal/repo"

	"github.com/gin-gonic/gin"
	_ "github.com/glebarez/go-sqlite" // register sqlite driver
)

func main() {
	autoInstall := flag.Bool("install", true, "run the installation pipeline at startup")
	flag.Parse()

	initDirectories()
	initLogging()

	log.Println("Starting braindrived...")

	desc, err := platform.Detect()
	if err != nil {
		log.Fatalf("Platform detection failed: %v", err)
	}
	log.Printf("Platform: %s", desc)

	if err := db.Init(config.JournalFile); err != nil {
		log.Printf("Warning: failed to open journal: %v", err)
	}

	pipe, err := buildPipeline(desc)
	if err != nil {
		log.Fatalf("Failed to build install pipeline: %v", err)
	}

	// The supervisor is built once ports are known; before the first
	// successful run it supervises nothing and Status reports stopped.
	sup := buildSupervisor(desc, pipe)
	runner := &installRunner{pipe: pipe, sup: sup}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run the installation and bring the services up. Already-installed
	// machines pass straight through the completed stages. With
	// -install=false the daemon waits for POST /install instead.
	if *autoInstall {
		go func() {
			if _, err := runner.Run(ctx); err != nil {
				log.Printf("Installation did not complete: %v", err)
			}
		}()
	}

	srvErrCh := make(chan error, 1)
	go func() {
		if err := runControlAPI(ctx, runner, sup); err != nil && err != http.ErrServerClosed {
			srvErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v. Shutting down...", sig)
	case err := <-srvErrCh:
		log.Printf("Control API error: %v. Shutting down...", err)
	}

	cancel()
	sup.StopAll()
	db.Close()

	<-time.After(time.Second)
	log.Println("braindrived exit.")
}

func initDirectories() {
	dirs := []string{
		config.CacheDir,
		filepath.Dir(config.LogFile),
		filepath.Dir(config.StateFile),
		filepath.Dir(config.RuntimeDir),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Warning: failed to create directory %s: %v", dir, err)
		}
	}
}

func initLogging() {
	if config.LogFile == "" {
		return
	}

	logFile, err := os.OpenFile(config.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Printf("Warning: failed to open log file: %v, using stdout", err)
		return
	}

	log.SetOutput(logFile)
	gin.DefaultWriter = logFile
	gin.DefaultErrorWriter = logFile
}

func buildPipeline(desc platform.Descriptor) (*pipeline.Pipeline, error) {
	client, err := download.NewClient(config.CABundle, 0)
	if err != nil {
		return nil, err
	}

	installer := conda.NewInstaller(desc, config.RuntimeDir, config.CacheDir, client)
	builder := conda.NewBuilder(installer.CondaExe())

	p := pipeline.New()
	p.StatePath = config.StateFile
	p.LockPath = config.LockFile
	p.Runtime = installer
	p.Env = &envBuilder{
		builder: builder,
		prefix:  config.EnvDir,
		spec:    conda.DefaultEnvSpec(config.EnvName),
	}
	p.Repo = &repoManager{
		manager: repo.NewManager(config.RepoURL),
		dir:     config.AppDir,
	}
	p.NewDeps = func(env conda.Env, pair ports.Pair) pipeline.DepsInstaller {
		return &depsInstaller{inner: deps.NewInstaller(env, desc, pair), appDir: config.AppDir}
	}
	p.Journal = func(stage, status, message string) {
		if err := db.InsertEvent(stage, status, message); err != nil {
			log.Printf("Warning: failed to journal event: %v", err)
		}
	}
	return p, nil
}

func buildSupervisor(desc platform.Descriptor, pipe *pipeline.Pipeline) *keeper.Supervisor {
	st, err := pipeline.LoadState(config.StateFile)
	if err != nil {
		log.Printf("Warning: failed to read install state: %v", err)
		st = &pipeline.State{}
	}
	return keeper.NewSupervisor(pipe.CurrentEnv(), desc, config.AppDir, st.Ports, keeper.DefaultOptions())
}

func runControlAPI(ctx context.Context, runner *installRunner, sup *keeper.Supervisor) error {
	r := gin.Default()

	r.GET("/health", api.HealthCheckHandler)

	server := api.NewServer(runner, sup, db.RecentEvents, config.StateFile)
	server.BaseCtx = ctx

	v1 := r.Group("/api/v1", auth.TokenAuthMiddleware())
	{
		v1.GET("/status", server.StatusHandler)
		v1.GET("/events", server.EventsHandler)
		v1.POST("/install", server.InstallHandler)
		v1.POST("/update", server.UpdateHandler)
		v1.POST("/services/:role/start", server.ServiceStartHandler)
		v1.POST("/services/:role/stop", server.ServiceStopHandler)
		v1.GET("/services/:role/log", server.ServiceLogHandler)
	}

	srv := &http.Server{
		Addr:    "127.0.0.1:" + config.APIPort,
		Handler: r,
	}

	log.Printf("Control API listening on %s", srv.Addr)
	return srv.ListenAndServe()
}

// installRunner couples a pipeline run to service startup: once the
// stages complete the supervisor is pointed at the fresh environment and
// both services are brought up in order.
type installRunner struct {
	pipe *pipeline.Pipeline
	sup  *keeper.Supervisor
}

func (r *installRunner) Running() bool { return r.pipe.Running() }

func (r *installRunner) Run(ctx context.Context) (*pipeline.State, error) {
	st, err := r.pipe.Run(ctx)
	return r.startServices(ctx, st, err)
}

// Update stops the services before the source tree changes under them,
// pulls and refreshes through the pipeline, then brings them back up.
func (r *installRunner) Update(ctx context.Context) (*pipeline.State, error) {
	r.sup.StopAll()
	st, err := r.pipe.Update(ctx)
	return r.startServices(ctx, st, err)
}

func (r *installRunner) startServices(ctx context.Context, st *pipeline.State, err error) (*pipeline.State, error) {
	if err != nil {
		return st, err
	}
	r.sup.Reconfigure(r.pipe.CurrentEnv(), st.Ports)

	r.pipe.Report(pipeline.StageServices, pipeline.StatusStarted, "Starting services", 100)
	if err := r.sup.StartAll(ctx); err != nil {
		r.pipe.Report(pipeline.StageServices, pipeline.StatusFailed, err.Error(), 100)
		return st, err
	}
	r.pipe.Report(pipeline.StageServices, pipeline.StatusSucceeded, "Services running", 100)
	return st, nil
}

// envBuilder binds the conda builder to the configured prefix and spec.
type envBuilder struct {
	builder *conda.Builder
	prefix  string
	spec    conda.EnvSpec
}

func (e *envBuilder) Ensure(ctx context.Context) (conda.Env, error) {
	return e.builder.Ensure(ctx, e.prefix, e.spec)
}

func (e *envBuilder) Describe() conda.Env {
	return conda.Env{Name: e.spec.Name, Prefix: e.prefix, CondaExe: e.builder.CondaExe}
}

// repoManager binds the repository manager to the configured checkout dir.
type repoManager struct {
	manager *repo.Manager
	dir     string
}

func (r *repoManager) Cloned() bool { return r.manager.Cloned(r.dir) }

func (r *repoManager) Clone(ctx context.Context) error { return r.manager.Clone(ctx, r.dir) }

func (r *repoManager) Update(ctx context.Context) error { return r.manager.Update(ctx, r.dir) }

// depsInstaller binds the dependency installer to the checkout dir.
type depsInstaller struct {
	inner  *deps.Installer
	appDir string
}

func (d *depsInstaller) InstallBackend(ctx context.Context) error {
	return d.inner.InstallBackend(ctx, d.appDir)
}

func (d *depsInstaller) InstallFrontend(ctx context.Context) error {
	return d.inner.InstallFrontend(ctx, d.appDir)
}
