package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

var validate = validator.New()

type accountPayload struct {
	TeamID     string `json:"team_id" validate:"required"`
	SecureCSes string `json:"secure_c_ses" validate:"required"`
	HostCOses  string `json:"host_c_oses"`
	CSesIdx    string `json:"csesidx" validate:"required"`
	UserAgent  string `json:"user_agent"`
}

type accountView struct {
	ID                string    `json:"id"`
	TeamID            string    `json:"team_id"`
	CSesIdx           string    `json:"csesidx"`
	UserAgent         string    `json:"user_agent,omitempty"`
	Available         bool      `json:"available"`
	UnavailableReason string    `json:"unavailable_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// toAccountView projects an account for API responses. Secrets never leave
// the server.
func toAccountView(a domain.Account) accountView {
	return accountView{
		ID:                a.ID,
		TeamID:            a.TeamID,
		CSesIdx:           a.CSesIdx,
		UserAgent:         a.UserAgent,
		Available:         a.Available,
		UnavailableReason: a.UnavailableReason,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// ListAccountsHandler returns all accounts without secret material.
func (s *Server) ListAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := s.Accounts.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]accountView, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, toAccountView(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// CreateAccountHandler registers a new credential bundle. New accounts start
// available.
func (s *Server) CreateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body accountPayload
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(body); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		id, err := s.Accounts.Create(r.Context(), domain.Account{
			TeamID:     body.TeamID,
			SecureCSes: body.SecureCSes,
			HostCOses:  body.HostCOses,
			CSesIdx:    body.CSesIdx,
			UserAgent:  body.UserAgent,
			Available:  true,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// UpdateAccountHandler replaces the credential bundle for an account.
func (s *Server) UpdateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var body accountPayload
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(body); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		current, err := s.Accounts.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		current.TeamID = body.TeamID
		current.SecureCSes = body.SecureCSes
		current.HostCOses = body.HostCOses
		current.CSesIdx = body.CSesIdx
		current.UserAgent = body.UserAgent
		if err := s.Accounts.Update(r.Context(), current); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// DeleteAccountHandler removes an account from the pool permanently.
func (s *Server) DeleteAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Accounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// SetAccountAvailabilityHandler lets operators re-enable a disabled account
// or pull one out of rotation manually.
func (s *Server) SetAccountAvailabilityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Available bool   `json:"available"`
			Reason    string `json:"reason"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		id := chi.URLParam(r, "id")
		var err error
		if body.Available {
			err = s.Pool.SetAvailable(r.Context(), id, true)
		} else {
			reason := body.Reason
			if reason == "" {
				reason = "disabled by operator"
			}
			err = s.Pool.MarkUnavailable(r.Context(), id, reason)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type modelPayload struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Enabled bool   `json:"enabled"`
}

// ListModelsAdminHandler returns the full model list including disabled ones.
func (s *Server) ListModelsAdminHandler() http.HandlerFunc {
	type view struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Enabled   bool      `json:"enabled"`
		CreatedAt time.Time `json:"created_at"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := s.Models.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]view, 0, len(models))
		for _, m := range models {
			out = append(out, view{ID: m.ID, Name: m.Name, Enabled: m.Enabled, CreatedAt: m.CreatedAt})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// CreateModelHandler registers a model id for the /v1/models surface.
func (s *Server) CreateModelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body modelPayload
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(body); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		m := domain.Model{ID: body.ID, Name: body.Name, Enabled: body.Enabled}
		if err := s.Models.Create(r.Context(), m); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	}
}

// UpdateModelHandler updates a model's display name and enabled flag.
func (s *Server) UpdateModelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body modelPayload
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		m := domain.Model{ID: chi.URLParam(r, "id"), Name: body.Name, Enabled: body.Enabled}
		if m.Name == "" {
			writeError(w, fmt.Errorf("%w: name is required", domain.ErrInvalidArgument))
			return
		}
		if err := s.Models.Update(r.Context(), m); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// DeleteModelHandler removes a model.
func (s *Server) DeleteModelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Models.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type configPayload struct {
	Proxy          string `json:"proxy"`
	ImageBaseURL   string `json:"image_base_url"`
	UploadEndpoint string `json:"upload_endpoint"`
	UploadAPIToken string `json:"upload_api_token"`
}

// GetConfigHandler returns the runtime configuration record. The upload token
// is masked.
func (s *Server) GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.Configs.Get(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		masked := ""
		if cfg.UploadAPIToken != "" {
			masked = "********"
		}
		writeJSON(w, http.StatusOK, configPayload{
			Proxy:          cfg.Proxy,
			ImageBaseURL:   cfg.ImageBaseURL,
			UploadEndpoint: cfg.UploadEndpoint,
			UploadAPIToken: masked,
		})
	}
}

// PutConfigHandler replaces the runtime configuration record. Sending the
// masked token placeholder keeps the stored token unchanged.
func (s *Server) PutConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body configPayload
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		next := domain.GatewayConfig{
			Proxy:          body.Proxy,
			ImageBaseURL:   body.ImageBaseURL,
			UploadEndpoint: body.UploadEndpoint,
			UploadAPIToken: body.UploadAPIToken,
		}
		if body.UploadAPIToken == "********" {
			current, err := s.Configs.Get(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			next.UploadAPIToken = current.UploadAPIToken
		}
		if err := s.Configs.Put(r.Context(), next); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// probePNG is a valid 1x1 transparent PNG used to verify upload credentials.
var probePNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// TestUploadHandler pushes a probe image through the configured upload
// endpoint so operators can verify credentials before relying on them.
func (s *Server) TestUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.Configs.Get(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if !cfg.UploadConfigured() {
			writeError(w, fmt.Errorf("upload endpoint or token not set: %w", domain.ErrConfigMissing))
			return
		}
		src, err := s.Uploader.Upload(r.Context(), cfg.UploadEndpoint, cfg.UploadAPIToken, probePNG, "probe.png", "image/png")
		if err != nil {
			LoggerFrom(r).Error("upload probe failed", "error", err)
			writeJSON(w, http.StatusBadGateway, errorEnvelope{Error: "upload probe failed: " + err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"src": src})
	}
}
