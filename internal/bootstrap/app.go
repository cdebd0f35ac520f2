// Package bootstrap assembles the pipeline and the API from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"interview-agent/internal/extraction"
	"interview-agent/internal/gate"
	"interview-agent/internal/llm"
	openai "interview-agent/internal/llm/openai"
	"interview-agent/internal/pipeline"
	"interview-agent/internal/progress"
	"interview-agent/internal/runs"
	"interview-agent/internal/scrape"
	"interview-agent/internal/search"
	"interview-agent/internal/shared/config"
	"interview-agent/internal/shared/metrics"
	"interview-agent/internal/shared/server"
	"interview-agent/internal/shared/server/middleware"
	"interview-agent/internal/shared/storage/db"
	"interview-agent/internal/shared/storage/object"
	localstore "interview-agent/internal/shared/storage/object/local"
	s3store "interview-agent/internal/shared/storage/object/s3"
)

// Engine is the pipeline with the clients it calls through one shared gate.
type Engine struct {
	Gate    *gate.Gate
	Tracker *progress.Tracker
	LLM     llm.Generator
	Search  search.Searcher
	Runner  *pipeline.Runner
}

// BuildEngine wires the gate, the upstream clients and the stage graph.
// Missing credentials leave the matching client unconfigured; its calls fail
// with ErrNotConfigured.
func BuildEngine(cfg config.Config, tracker *progress.Tracker) (*Engine, error) {
	if tracker == nil {
		tracker = progress.New()
	}
	g := gate.New(cfg.GateConfig())

	var gen llm.Generator = llm.Unconfigured{}
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		client, err := openai.NewClient(cfg.LLMAPIKey, cfg.LLMModel,
			openai.WithBaseURL(cfg.LLMBaseURL),
			openai.WithTimeout(cfg.PerCallTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
		gen = client
	}

	var searcher search.Searcher = search.Unconfigured{}
	if strings.TrimSpace(cfg.TavilyAPIKey) != "" {
		tavily, err := search.NewTavily(cfg.TavilyAPIKey, "", cfg.PerCallTimeout)
		if err != nil {
			return nil, fmt.Errorf("search client: %w", err)
		}
		searcher = tavily
	}

	gatedLLM := llm.NewGated(gen, g)
	gatedSearch := search.NewGated(searcher, g)
	fetcher := &scrape.Gated{Base: scrape.NewHTTPFetcher(cfg.PerCallTimeout), Gate: g}

	runner, err := pipeline.NewRunner(&pipeline.Stages{
		LLM:                gatedLLM,
		Search:             gatedSearch,
		Extractor:          extraction.New(fetcher, gatedLLM),
		Tracker:            tracker,
		MaxResultsOverride: cfg.SearchMaxResultsOverride,
	})
	if err != nil {
		return nil, fmt.Errorf("compile pipeline: %w", err)
	}

	return &Engine{
		Gate:    g,
		Tracker: tracker,
		LLM:     gatedLLM,
		Search:  gatedSearch,
		Runner:  runner,
	}, nil
}

// App holds the API dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Engine *Engine
	Runs   *runs.Service
	Quota  *middleware.DailyQuota
}

// Build prepares the API: storage, the pipeline engine, the run service and
// the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	engine, err := BuildEngine(cfg, progress.New())
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}
	registerGateMetrics(engine.Gate)

	var repo runs.Repo = runs.NewMemoryRepo()
	if sqlDB != nil {
		repo = &runs.PGRepo{DB: sqlDB}
	}
	svc := runs.NewService(repo, store, engine.Runner)
	quota := middleware.NewDailyQuota(cfg.RunsPerIPPerDay, cfg.RunsPerDay, nil)
	origins := middleware.NewOriginAllowList(cfg.CORSAllowOrigin)

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Engine: engine,
		Runs:   svc,
		Quota:  quota,
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		RunsHandler:     runs.NewHandler(svc),
		ProgressHandler: progress.NewHandler(engine.Tracker, origins.Allowed),
		GateStats:       engine.Gate.Stats,
		Quota:           quota,
	})
	return app, nil
}

// Close stops the run service and releases the database.
func (a *App) Close(ctx context.Context) error {
	err := a.Runs.Shutdown(ctx)
	closeDB(a.DB)
	return err
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func registerGateMetrics(g *gate.Gate) {
	counter := func(name, help string, pick func(gate.Stats) uint64) {
		metrics.RegisterCounter(name, help, func() uint64 { return pick(g.Stats()) })
	}
	gauge := func(name, help string, pick func(gate.Stats) int) {
		metrics.RegisterGauge(name, help, func() float64 { return float64(pick(g.Stats())) })
	}
	counter("gate_calls_total", "Gated upstream calls", func(s gate.Stats) uint64 { return s.TotalCalls })
	counter("gate_calls_succeeded_total", "Gated calls that succeeded", func(s gate.Stats) uint64 { return s.SuccessfulCalls })
	counter("gate_calls_overloaded_total", "Attempts rejected as overload", func(s gate.Stats) uint64 { return s.OverloadedCalls })
	counter("gate_retries_total", "Retried attempts", func(s gate.Stats) uint64 { return s.Retries })
	counter("gate_calls_failed_total", "Gated calls that failed", func(s gate.Stats) uint64 { return s.FailedCalls })
	gauge("gate_limit", "Current concurrency limit", func(s gate.Stats) int { return s.Limit })
	gauge("gate_in_flight", "Calls holding a slot", func(s gate.Stats) int { return s.InFlight })
	gauge("gate_waiting", "Calls waiting for a slot", func(s gate.Stats) int { return s.Waiting })
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
