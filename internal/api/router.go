package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Harshitk-cp/vigil/internal/action"
	"github.com/Harshitk-cp/vigil/internal/api/handlers"
	mw "github.com/Harshitk-cp/vigil/internal/api/middleware"
	"github.com/Harshitk-cp/vigil/internal/buildconfig"
	"github.com/Harshitk-cp/vigil/internal/config"
	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/embedding"
	"github.com/Harshitk-cp/vigil/internal/knowledge"
	"github.com/Harshitk-cp/vigil/internal/metrics"
	"github.com/Harshitk-cp/vigil/internal/notify"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/Harshitk-cp/vigil/internal/probe"
	"github.com/Harshitk-cp/vigil/internal/service"
	"github.com/Harshitk-cp/vigil/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Options selects the backends NewApp wires. A nil DB keeps policies,
// replays and knowledge in memory; a nil Runs keeps checkpoints in memory.
type Options struct {
	DB       *pgxpool.Pool
	Runs     domain.RunStore
	Oracle   domain.Oracle
	Executor domain.ActionExecutor

	// KnowledgeDir overrides KNOWLEDGE_DIR.
	KnowledgeDir string
}

// App holds the router and the long-lived services main needs to start and
// stop.
type App struct {
	Router       *chi.Mux
	Investigator *service.Investigator
	Policies     *service.PolicyService
	Memory       *service.StrategicMemory
	Drift        *service.DriftDetector
	Tuner        *service.EvolutionTuner
	Retention    *service.RetentionService
	Hub          *notify.Hub
	Metrics      *metrics.Registry

	// FileKnowledge is set when knowledge comes from KNOWLEDGE_DIR.
	FileKnowledge *knowledge.FileStore

	db        *pgxpool.Pool
	ownedRuns *store.RunStore
	startTime time.Time
}

func NewApp(opts Options, logger *zap.Logger) (*App, error) {
	app := &App{
		db:        opts.DB,
		startTime: time.Now(),
		Metrics:   metrics.NewRegistry(),
		Hub:       notify.NewHub(logger),
	}

	embedder, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("embedding client not configured, similarity search disabled", zap.Error(err))
		embedder = nil
	}

	var (
		policyStore    domain.PolicyStore
		replayStore    domain.ReplayStore
		evolutionStore domain.EvolutionLogStore
		knowledgeStore domain.KnowledgeStore
	)
	if opts.DB != nil {
		policyStore = store.NewPolicyStore(opts.DB)
		replayStore = store.NewReplayStore(opts.DB)
		evolutionStore = store.NewEvolutionLogStore(opts.DB)
		knowledgeStore = store.NewKnowledgeStore(opts.DB, embedder, logger)
	} else {
		policyStore = store.NewMemPolicyStore()
		replayStore = store.NewMemReplayStore()
		evolutionStore = store.NewMemEvolutionLogStore()
		knowledgeStore = knowledge.Static(nil)
	}
	dir := opts.KnowledgeDir
	if dir == "" {
		dir = config.KnowledgeDir()
	}
	if dir != "" {
		fs, err := knowledge.NewFileStore(dir, logger)
		if err != nil {
			return nil, fmt.Errorf("load knowledge: %w", err)
		}
		app.FileKnowledge = fs
		knowledgeStore = fs
	}

	runs := opts.Runs
	if runs == nil {
		rs, err := store.NewRunStore("", logger)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		app.ownedRuns = rs
		runs = rs
	}

	// Oracle
	base := opts.Oracle
	if base == nil {
		base, err = oracle.NewClient(config.OracleProvider(), config.OracleAPIKey())
		if err != nil {
			logger.Warn("oracle client not configured, using heuristics only", zap.Error(err))
			base = oracle.NewMockClient()
		}
	}
	retry := oracle.DefaultRetryConfig()
	retry.MaxAttempts = config.OracleMaxAttempts()
	retry.InitialInterval = config.OracleInitialBackoff()
	retry.AttemptTimeout = config.OracleTimeout()
	retry.RequestsPerSecond = config.OracleRPS()
	judge := oracle.NewResilient(base, retry, logger)
	judge.SetObserver(app.Metrics)

	executor := opts.Executor
	if executor == nil {
		if url := config.ActionWebhookURL(); url != "" {
			executor = action.NewWebhook(url, logger)
		} else {
			executor = action.NewDryRun(logger)
		}
	}

	notifier := notify.Multi{notify.NewLogNotifier(logger), app.Hub}

	// Services
	app.Drift = service.NewDriftDetector(config.DriftWindowSize(), config.DriftMinSamples())
	app.Policies = service.NewPolicyService(policyStore, app.Drift, logger)
	app.Memory = service.NewStrategicMemory(replayStore, evolutionStore, logger)
	evolver := service.NewPolicyEvolver(judge, app.Memory, app.Policies, logger)
	evolver.SetThreshold(config.EvolutionThreshold())
	gatherer := service.NewEvidenceGatherer([]domain.EvidenceTool{
		probe.NewReadingProbe(),
		probe.NewKnowledgeProbe(),
	}, logger)

	app.Investigator = service.NewInvestigator(service.InvestigatorDeps{
		Knowledge: knowledgeStore,
		Generator: service.NewHypothesisGenerator(judge, logger),
		Gatherer:  gatherer,
		Beliefs:   service.NewBeliefUpdater(logger),
		Selector:  service.NewActionSelector(judge, logger),
		Executor:  executor,
		Analyzer:  service.NewCounterfactualAnalyzer(judge, logger),
		Memory:    app.Memory,
		Drift:     app.Drift,
		Evolver:   evolver,
		Policies:  app.Policies,
		Runs:      runs,
		Notifier:  notifier,
		Observer:  app.Metrics,
	}, service.InvestigatorConfig{
		MaxIterations: config.MaxEvidenceIterations(),
		MaxConcurrent: int64(config.MaxConcurrentInvestigations()),
		Timeout:       config.InvestigationTimeout(),
	}, logger)

	app.Tuner = service.NewEvolutionTuner(evolver, app.Drift, notifier, logger)
	app.Retention = service.NewRetentionService(app.Memory, config.MemoryRetention(), logger)

	// Handlers
	investigationHandler := handlers.NewInvestigationHandler(app.Investigator, logger)
	policyHandler := handlers.NewPolicyHandler(app.Policies, app.Memory, logger)
	memoryHandler := handlers.NewMemoryHandler(app.Memory, app.Drift, logger)

	r := chi.NewRouter()
	app.Router = r

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(app.Metrics))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// No auth
	r.Get("/health", app.healthHandler)
	r.Handle("/metrics", app.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/investigations", func(r chi.Router) {
			r.Post("/", investigationHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", investigationHandler.Get)
				r.Post("/resume", investigationHandler.Resume)
			})
		})

		r.Route("/policy", func(r chi.Router) {
			r.Get("/", policyHandler.Current)
			r.Get("/versions", policyHandler.Versions)
			r.Get("/versions/{version}", policyHandler.GetVersion)
			r.Get("/evolutions", policyHandler.Evolutions)
		})

		r.Route("/memory", func(r chi.Router) {
			r.Get("/stats", memoryHandler.Stats)
			r.Get("/replays", memoryHandler.Replays)
		})
		r.Get("/drift", memoryHandler.Drift)

		r.Handle("/events", app.Hub)
	})

	return app, nil
}

// Close releases stores NewApp opened itself.
func (app *App) Close() error {
	if app.ownedRuns != nil {
		return app.ownedRuns.Close()
	}
	return nil
}

type healthResponse struct {
	Status        string            `json:"status"`
	Error         string            `json:"error,omitempty"`
	Build         map[string]string `json:"build"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	PolicyVersion int               `json:"policy_version,omitempty"`
	EventClients  int               `json:"event_clients"`
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Build:         buildconfig.VersionInfo(),
		UptimeSeconds: time.Since(app.startTime).Seconds(),
		EventClients:  app.Hub.Clients(),
	}
	if p := app.Policies.Current(); p != nil {
		resp.PolicyVersion = p.Version
	}

	status := http.StatusOK
	if app.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "error"
			resp.Error = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
