package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Chat       *usecase.ChatService
	Pool       *usecase.PoolService
	Accounts   domain.AccountRepository
	Models     domain.ModelRepository
	Configs    domain.ConfigRepository
	Uploader   domain.Uploader
	Sessions   *SessionManager
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, chat *usecase.ChatService, pool *usecase.PoolService, accounts domain.AccountRepository, models domain.ModelRepository, configs domain.ConfigRepository, uploader domain.Uploader, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:        cfg,
		Chat:       chat,
		Pool:       pool,
		Accounts:   accounts,
		Models:     models,
		Configs:    configs,
		Uploader:   uploader,
		Sessions:   NewSessionManager(cfg),
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// ChatCompletionsHandler implements POST /v1/chat/completions in both
// streaming and single-shot modes.
func (s *Server) ChatCompletionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if len(req.Messages) == 0 {
			writeError(w, fmt.Errorf("%w: no messages provided", domain.ErrInvalidArgument))
			return
		}
		model := req.Model
		if model == "" {
			model = domain.DefaultModel
		}

		outcome, err := s.Chat.Complete(r.Context(), req.Messages, model)
		if err != nil {
			LoggerFrom(r).Error("chat completion failed", "error", err)
			if errors.Is(err, domain.ErrUpstreamRateLimited) {
				writeJSON(w, http.StatusTooManyRequests, errorEnvelope{Error: "upstream overloaded, retry later"})
				return
			}
			writeError(w, err)
			return
		}

		if req.Stream {
			streamCompletion(w, r, outcome.Text, model, outcome.Artifacts)
			return
		}
		writeCompletion(w, outcome.Text, model, req.Messages, outcome.Artifacts)
	}
}

// ModelsHandler lists enabled models in the OpenAI wire shape.
func (s *Server) ModelsHandler() http.HandlerFunc {
	type wireModel struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := s.Models.ListEnabled(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]wireModel, 0, len(models))
		for _, m := range models {
			out = append(out, wireModel{ID: m.ID, Object: "model", Created: m.CreatedAt.Unix(), OwnedBy: "organization"})
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": out})
	}
}

// ReadyzHandler reports dependency readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]func(context.Context) error{
			"db":    s.DBCheck,
			"redis": s.RedisCheck,
		}
		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if check == nil {
				status[name] = "skipped"
				continue
			}
			if err := check(r.Context()); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}
