package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/reciprocity/matchloop/internal/api"
	"github.com/reciprocity/matchloop/internal/api/handlers"
	"github.com/reciprocity/matchloop/internal/api/middleware"
	"github.com/reciprocity/matchloop/internal/config"
	"github.com/reciprocity/matchloop/internal/jobs"
	"github.com/reciprocity/matchloop/internal/observability"
	"github.com/reciprocity/matchloop/internal/repository"
	"github.com/reciprocity/matchloop/internal/service"
	"github.com/reciprocity/matchloop/internal/workers"
	"github.com/reciprocity/matchloop/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool // nil with the memory store backend
	server         *http.Server
	river          *river.Client[pgx.Tx] // nil when River is disabled
	cacheBackend   cache.Backend
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const riverQueueDepthInterval = 15 * time.Second

// Refresh enqueues run on the request path, so retries stay short.
const (
	enqueueRetries    = 2
	enqueueBackoff    = 25 * time.Millisecond
	enqueueMaxBackoff = 100 * time.Millisecond
)

// setupMetrics creates the meter provider, its /metrics handler and the service metrics.
// Returns all nil when the configured exporter yields no provider.
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, handler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("matchloop"))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, handler, metrics, nil
}

// NewApp builds and wires all components. db is nil with the memory store backend.
// It does not start the HTTP server or River; call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (app *App, err error) {
	var (
		meterProvider  *sdkmetric.MeterProvider
		metricsHandler http.Handler
		metrics        *observability.Metrics
		tracerProvider *sdktrace.TracerProvider
	)

	defer func() {
		if err != nil {
			if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
				slog.Error("shutdown observability after startup error", "error", err2)
			}
		}
	}()

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metricsHandler, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// request_id, job_kind/job_id and trace ids (when tracing is on) are added to every record.
	slog.SetDefault(slog.New(observability.NewContextHandler(slog.Default().Handler())))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	var (
		feedbackMetrics observability.FeedbackMetrics
		cacheMetrics    observability.CacheMetrics
		jobMetrics      observability.JobMetrics
		apiMetrics      observability.APIMetrics
	)

	if metrics != nil {
		feedbackMetrics = metrics.Feedback
		cacheMetrics = metrics.Cache
		jobMetrics = metrics.Jobs
		apiMetrics = metrics.API
	}

	stores := repository.NewMemoryStores()
	if db != nil {
		stores = repository.NewPostgresStores(db)
	}

	backend, err := cache.Open(ctx, cache.OpenConfig{
		RedisURL:         cfg.RedisURL,
		RedisOpTimeout:   cfg.CacheTimeout,
		MemoryMaxEntries: cfg.MemoryCacheMaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache backend: %w", err)
	}

	matchCache := service.NewMatchCache(service.MatchCacheParams{
		Backend: backend,
		Config:  cfg.MatchCache,
		Metrics: cacheMetrics,
	})

	learner := service.NewFeedbackLearner(service.FeedbackLearnerParams{
		Embeddings: stores.Embeddings,
		Cache:      matchCache,
		Analyzer:   service.NewFeedbackAnalyzer(),
		Config:     cfg.Learning,
		Metrics:    feedbackMetrics,
	})

	loop := service.NewFeedbackLoop(service.FeedbackLoopParams{
		Collector: service.NewFeedbackCollector(stores.Feedback, feedbackMetrics, nil),
		Learner:   learner,
		Analytics: service.NewFeedbackAnalyticsEngine(stores.Feedback),
		Weights:   stores.Weights,
		Config:    cfg.Loop,
		Metrics:   feedbackMetrics,
	})

	matcher := service.NewCachedMatcher(service.CachedMatcherParams{
		Cache:   matchCache,
		Matcher: service.NewVectorMatcher(stores.Embeddings, cfg.MatchMinScore),
		Limit:   cfg.MatchLimit,
		Metrics: cacheMetrics,
	})

	var riverClient *river.Client[pgx.Tx]

	if db != nil && cfg.RiverEnabled {
		riverClient, err = newRiverClient(cfg, db, loop, matcher, jobMetrics)
		if err != nil {
			closeBackend(backend)

			return nil, err
		}

		inserter := jobs.NewRetryingInserter(
			jobs.NewRiverJobInserter(riverClient, cfg.CacheRefreshInterval),
			jobs.RetryingInserterConfig{MaxRetries: enqueueRetries, InitialBackoff: enqueueBackoff, MaxBackoff: enqueueMaxBackoff},
		)
		matcher.SetRefresher(jobs.NewRefreshEnqueuer(inserter))
	} else {
		slog.Info("River disabled; stale matches are refreshed on the next miss",
			"store_backend", cfg.StoreBackend, "river_enabled", cfg.RiverEnabled)
	}

	var health *handlers.HealthHandler
	if db != nil {
		health = handlers.NewHealthHandler(db)
	} else {
		health = handlers.NewHealthHandler(nil)
	}

	router := api.NewRouter(api.RouterParams{
		Health:   health,
		Feedback: handlers.NewFeedbackHandler(loop, learner, stores.Weights),
		Matches:  handlers.NewMatchesHandler(matcher),
		Metrics:  metricsHandler,
		APIKey:   cfg.APIKey,
	})

	return &App{
		cfg:            cfg,
		db:             db,
		server:         newHTTPServer(cfg, router, apiMetrics, meterProvider, tracerProvider),
		river:          riverClient,
		cacheBackend:   backend,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newRiverClient registers the workers and the periodic close-loop job.
func newRiverClient(
	cfg *config.Config,
	db *pgxpool.Pool,
	loop *service.FeedbackLoop,
	matcher *service.CachedMatcher,
	jobMetrics observability.JobMetrics,
) (*river.Client[pgx.Tx], error) {
	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewCloseLoopWorker(loop, jobMetrics, nil))
	river.AddWorker(riverWorkers, workers.NewCacheRefreshWorker(matcher, cfg.CacheRefreshRateLimit, jobMetrics, nil))

	client, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.CloseLoopInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return jobs.CloseLoopArgs{}, nil
				},
				nil,
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	slog.Info("River enabled", "workers", cfg.RiverWorkers, "close_loop_interval", cfg.CloseLoopInterval)

	return client, nil
}

// newHTTPServer builds the HTTP server.
// Handler chain: RequestID -> Metrics -> otelhttp -> Logging -> MaxBody -> router, so access logs get trace_id/span_id.
func newHTTPServer(
	cfg *config.Config,
	router http.Handler,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	var bodyRecorder middleware.BodyTooLargeRecorder
	if apiMetrics != nil {
		bodyRecorder = apiMetrics
	}

	inner := middleware.Logging(middleware.MaxBody(cfg.MaxRequestBodyBytes, bodyRecorder)(router))
	handler := otelhttp.NewHandler(inner, "matchloop-api", otelOpts...)
	handler = middleware.Metrics(apiMetrics)(handler)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.river != nil {
		if a.metrics != nil && a.metrics.Jobs != nil {
			go runRiverQueueDepthPoller(riverCtx, a.db, a.metrics.Jobs)
		}

		go func() {
			if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case runErr <- fmt.Errorf("river: %w", err):
				default:
				}
			}
		}()
	}

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// runRiverQueueDepthPoller periodically updates the River default-queue depth gauge.
func runRiverQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, jobMetrics observability.JobMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	update := func() {
		var count int

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			river.QueueDefault,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "river queue depth poll failed", "error", err)

			return
		}

		jobMetrics.SetRiverQueueDepth(count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

func closeBackend(backend cache.Backend) {
	if closer, ok := backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("close cache backend", "error", err)
		}
	}
}

// Shutdown stops the server, then River, then closes the cache backend. Call after Run returns.
// Observability is shut down last; its error is returned only when everything else shut down cleanly.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	defer closeBackend(a.cacheBackend)

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if a.river != nil {
			if stopErr := a.river.Stop(ctx); stopErr != nil {
				slog.Error("river stop during server shutdown", "error", stopErr)
			}
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if a.river != nil {
		if err = a.river.Stop(ctx); err != nil {
			return fmt.Errorf("river stop: %w", err)
		}
	}

	return nil
}
