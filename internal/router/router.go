package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/handlers"
	"github.com/modelgate/modelgate/internal/middleware"
	"github.com/modelgate/modelgate/internal/orchestrator"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *orchestrator.Orchestrator
	Policy       *orchestrator.ResiliencePolicy
	Registry     *prometheus.Registry
	Version      string
}

// New builds the gateway router.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Correlation)
	r.Use(middleware.Logger(deps.Logger))

	corsCfg := deps.Config.CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   orDefault(corsCfg.AllowedOrigins, []string{"*"}),
		AllowedMethods:   orDefault(corsCfg.AllowedMethods, []string{"GET", "POST", "OPTIONS"}),
		AllowedHeaders:   orDefault(corsCfg.AllowedHeaders, []string{"Accept", "Content-Type", middleware.CorrelationHeader}),
		ExposedHeaders:   orDefault(corsCfg.ExposedHeaders, []string{middleware.CorrelationHeader}),
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           corsCfg.MaxAge,
	}))

	healthHandler := handlers.NewHealthHandler(deps.Version)
	chatHandler := handlers.NewChatHandler(deps.Orchestrator, deps.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if deps.Registry != nil {
		r.Get("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", chatHandler.ChatCompletion)
		r.Post("/chat/completions/stream", chatHandler.ChatCompletionStream)

		if deps.Policy != nil {
			r.Get("/admin/breakers", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(deps.Policy.BreakerStates())
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	return r
}

func orDefault(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return fallback
}
