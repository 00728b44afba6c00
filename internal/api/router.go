package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/api/handlers"
	"github.com/Harshitk-cp/mnemo/internal/buildconfig"
	mw "github.com/Harshitk-cp/mnemo/internal/api/middleware"
	"github.com/Harshitk-cp/mnemo/internal/config"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/llm"
	"github.com/Harshitk-cp/mnemo/internal/service"
	"github.com/Harshitk-cp/mnemo/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Memory  *service.MemoryService
	Sweeper *service.DecaySweeper

	store        domain.MemoryStore
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
	serverErrors atomic.Int64
}

func NewApp(ms domain.MemoryStore, completion domain.CompletionClient, clock domain.Clock, logger *zap.Logger) *App {
	trigger := service.NewTriggerClassifier(config.CaptureMinLength(), config.CaptureTriggers())
	summarizer := service.NewSummarizer(completion, config.SummarizeTimeout(), logger)
	retriever := service.NewRetriever(ms, clock, config.RecallFallbackWindow(), logger)

	memorySvc := service.NewMemoryService(ms, clock, trigger, summarizer, retriever, logger)
	memorySvc.SetCaptureTimeout(config.CaptureTimeout())

	topK := config.RecallTopK()
	memoryHandler := handlers.NewMemoryHandler(memorySvc, topK, logger)
	turnHandler := handlers.NewTurnHandler(memorySvc, topK, logger)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Memory:    memorySvc,
		Sweeper:   NewSweeper(ms, clock, logger),
		store:     ms,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, &app.serverErrors)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.TokenAuth(config.APIToken()))
		r.Use(mw.UserScope)
		r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

		r.Route("/turns", func(r chi.Router) {
			r.Post("/", turnHandler.Prepare)
			r.Post("/reply", turnHandler.Reply)
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", memoryHandler.List)
			r.Post("/capture", memoryHandler.Capture)
			r.Get("/recall", memoryHandler.Recall)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Patch("/", memoryHandler.Update)
				r.Delete("/", memoryHandler.Delete)
			})
		})
	})

	return app
}

// NewSweeper builds the decay sweeper from configuration.
func NewSweeper(ms domain.MemoryStore, clock domain.Clock, logger *zap.Logger) *service.DecaySweeper {
	policy := domain.RetentionPolicy{
		ShortTTL:            domain.Days(config.ShortRetentionDays()),
		RelationshipTTL:     domain.Days(config.RelationshipRetentionDays()),
		RelationshipMinRefs: config.RelationshipMinReferences(),
	}
	s := service.NewDecaySweeper(ms, clock, policy, logger)
	s.SetWorkers(config.SweepWorkers())
	s.SetSchedule(config.SweepSchedule())
	s.SetTimeout(config.SweepTimeout())
	if days := config.PurgeAfterDays(); days > 0 {
		s.SetPurgeAfter(domain.Days(days))
	}
	return s
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := app.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"server_errors":  app.serverErrors.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"last_sweep": app.Sweeper.LastResult(),
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.MemoryStore      = (*store.MemoryStore)(nil)
	_ domain.MemoryStore      = (*store.SQLiteStore)(nil)
	_ domain.CompletionClient = (*llm.OpenAIClient)(nil)
	_ domain.CompletionClient = (*llm.AnthropicClient)(nil)
	_ domain.CompletionClient = (*llm.GeminiClient)(nil)
	_ domain.CompletionClient = (*llm.MockClient)(nil)
)
