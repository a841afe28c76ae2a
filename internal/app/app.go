package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"hark/apps/backend/features/job"
	"hark/apps/backend/features/stats"
	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/adapter/gemini"
	"hark/apps/backend/internal/analyzer"
	"hark/apps/backend/internal/checkpoint"
	"hark/apps/backend/internal/config"
	"hark/apps/backend/internal/lock"
	"hark/apps/backend/internal/middleware"
	"hark/apps/backend/internal/processor"
	"hark/apps/backend/internal/scheduler"
	"hark/apps/backend/internal/settings"
	"hark/apps/backend/internal/source"
	"hark/apps/backend/internal/worker"
)

// Options overrides collaborators, mostly for tests.
type Options struct {
	TextModel  analyzer.TextModel
	Embedder   analyzer.Embedder
	Runner     source.JobRunner
	Locker     lock.Locker
	HTTPClient *http.Client
}

type App struct {
	Handler         http.Handler
	WorkflowService *workflow.Service
	Processor       *processor.Processor
	RunConsumer     *worker.RunConsumer
	Scheduler       *scheduler.Scheduler

	cfg    *config.Config
	closer func() error
}

func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger, opts *Options) (*App, error) {
	if deps == nil || deps.DB == nil || deps.NSQProducer == nil {
		return nil, errors.New("app: database and nsq producer are required")
	}
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(deps.DB)
	settingsService := settings.NewService(settingsRepo)
	seedGeminiKey(settingsService, cfg.GeminiAPIKey)
	settingsHandler := settings.NewHandler(settingsService)

	// Adapters: Dynamic
	geminiClient := gemini.NewDynamicClient(settingsService)
	model, embedder := opts.TextModel, opts.Embedder
	if model == nil {
		model = geminiClient
	}
	if embedder == nil {
		embedder = geminiClient
	}
	runner := opts.Runner
	if runner == nil {
		runner = source.NewBrowserRunner()
	}

	// Feature: Workflow
	checkpoints := checkpoint.NewPostgresStore(deps.DB)
	workflowRepo := workflow.NewPostgresRepo(deps.DB)
	workflowService := workflow.NewService(workflowRepo, checkpoints, deps.NSQProducer)
	workflowHandler := workflow.NewHandler(workflowService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(deps.DB)
	jobService := job.NewService(jobRepo, deps.NSQProducer, logger)
	jobHandler := job.NewHandler(jobService)

	// Pipeline
	componentDeps := ComponentDeps{
		Model:      model,
		Embedder:   embedder,
		Runner:     runner,
		Publisher:  deps.NSQProducer,
		Gorm:       deps.Gorm,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
	}
	var statsIndex stats.RecordIndex
	if deps.VectorStore != nil {
		componentDeps.Index = deps.VectorStore
		statsIndex = deps.VectorStore
	}
	components := NewComponents(componentDeps)

	locker := opts.Locker
	if locker == nil {
		if deps.Redis != nil {
			locker = lock.NewRedis(deps.Redis, "hark:lock:")
		} else {
			locker = lock.NewLocal()
		}
	}
	proc := processor.New(workflowRepo, checkpoints,
		components.Sources, components.Analyzers, components.Sinks,
		processor.WithLocker(locker, seconds(cfg.LockTTLSeconds)),
	)
	runConsumer := worker.NewRunConsumer(proc, jobRepo, seconds(cfg.PassTimeoutSeconds))
	sched := scheduler.New(workflowRepo, deps.NSQProducer, locker, seconds(cfg.SchedulerIntervalSeconds))

	// Feature: Stats
	statsHandler := stats.NewHandler(workflowRepo, jobRepo, statsIndex)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /workflows", middleware.CorrelationID(enableCORS(workflowHandler.Create)))
	mux.Handle("GET /workflows", middleware.CorrelationID(enableCORS(workflowHandler.List)))
	mux.Handle("GET /workflows/{id}", middleware.CorrelationID(enableCORS(workflowHandler.Get)))
	mux.Handle("PUT /workflows/{id}", middleware.CorrelationID(enableCORS(workflowHandler.Update)))
	mux.Handle("DELETE /workflows/{id}", middleware.CorrelationID(enableCORS(workflowHandler.Delete)))
	mux.Handle("POST /workflows/{id}/run", middleware.CorrelationID(enableCORS(workflowHandler.Run)))
	mux.Handle("GET /workflows/{id}/checkpoint", middleware.CorrelationID(enableCORS(workflowHandler.GetCheckpoint)))
	mux.Handle("DELETE /workflows/{id}/checkpoint", middleware.CorrelationID(enableCORS(workflowHandler.ResetCheckpoint)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))
	mux.Handle("DELETE /jobs/{id}", middleware.CorrelationID(enableCORS(jobHandler.Dismiss)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mux,
		WorkflowService: workflowService,
		Processor:       proc,
		RunConsumer:     runConsumer,
		Scheduler:       sched,
		cfg:             cfg,
		closer:          geminiClient.Close,
	}, nil
}

func seedGeminiKey(svc *settings.Service, key string) {
	if key == "" {
		return
	}
	ctx := context.Background()
	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}
	if set.GeminiAPIKey != "" {
		return
	}
	set.GeminiAPIKey = key
	if err := svc.Update(ctx, set); err != nil {
		slog.Warn("failed to seed gemini api key", "error", err)
		return
	}
	slog.Info("seeded gemini api key from environment")
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Run serves the API, consumes run tasks and schedules workflows until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.closer(); err != nil {
			slog.Warn("failed to close gemini client", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.EnableAPI {
		g.Go(func() error { return a.serve(ctx) })
	}
	if a.cfg.EnableWorker {
		consumer, err := a.consumer()
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			consumer.Stop()
			<-consumer.StopChan
			slog.Info("NSQ run consumer stopped")
			return nil
		})
	}
	if a.cfg.EnableScheduler {
		g.Go(func() error { return a.Scheduler.Run(ctx) })
	}

	return g.Wait()
}

func (a *App) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) consumer() (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = a.cfg.WorkerConcurrency
	// a pass can outlive the default 1m message timeout
	nsqCfg.MsgTimeout = seconds(a.cfg.PassTimeoutSeconds) + time.Minute

	consumer, err := nsq.NewConsumer(config.TopicWorkflowRun, config.ChannelWorkflowRun, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ consumer: %w", err)
	}
	consumer.AddConcurrentHandlers(a.RunConsumer, a.cfg.WorkerConcurrency)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect NSQ consumer: %w", err)
	}
	slog.Info("NSQ run consumer connected", "concurrency", a.cfg.WorkerConcurrency)
	return consumer, nil
}
