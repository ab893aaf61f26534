// Package app wires the HTTP router and shared middleware stack.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/httpserver"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
)

// BuildRouter assembles the full route tree: the OpenAI-compatible surface
// under /v1, the admin API under /api, and the operational endpoints.
//
// No global timeout middleware is installed; /v1/chat/completions streams for
// as long as the retry budget allows and is bounded by the server's write
// timeout instead.
func BuildRouter(cfg config.Config, srv *httpserver.Server) *chi.Mux {
	r := chi.NewRouter()

	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.SecurityHeaders)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(srv.RequireAuth)
		v1.Post("/chat/completions", srv.ChatCompletionsHandler())
		v1.Get("/models", srv.ModelsHandler())
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		api.Post("/login", srv.LoginHandler())
		api.Post("/logout", srv.LogoutHandler())

		api.Group(func(admin chi.Router) {
			admin.Use(srv.RequireAuth)
			admin.Route("/accounts", func(ar chi.Router) {
				ar.Get("/", srv.ListAccountsHandler())
				ar.Post("/", srv.CreateAccountHandler())
				ar.Put("/{id}", srv.UpdateAccountHandler())
				ar.Delete("/{id}", srv.DeleteAccountHandler())
				ar.Put("/{id}/availability", srv.SetAccountAvailabilityHandler())
			})
			admin.Route("/models", func(mr chi.Router) {
				mr.Get("/", srv.ListModelsAdminHandler())
				mr.Post("/", srv.CreateModelHandler())
				mr.Put("/{id}", srv.UpdateModelHandler())
				mr.Delete("/{id}", srv.DeleteModelHandler())
			})
			admin.Get("/config", srv.GetConfigHandler())
			admin.Put("/config", srv.PutConfigHandler())
			admin.Post("/upload/test", srv.TestUploadHandler())
		})
	})

	return r
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
