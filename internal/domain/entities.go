package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrPoolEmpty           = errors.New("no available accounts")
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	ErrAccountRejected     = errors.New("account rejected by upstream")
	ErrUpstreamTransient   = errors.New("upstream transient failure")
	ErrConfigMissing       = errors.New("upload configuration missing")
	ErrInternal            = errors.New("internal error")
)

// Account is one pooled set of upstream enterprise credentials.
// Invariants: ID is immutable once created; Available is the sole gate for
// selection eligibility.
type Account struct {
	ID                string
	TeamID            string
	SecureCSes        string // session-establishment secret
	HostCOses         string // optional auxiliary secret
	CSesIdx           string // credential index/identifier
	UserAgent         string
	Available         bool
	UnavailableReason string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SessionRecord caches the short-lived token and session handle for one
// account. Replaced wholesale on refresh; lost on process restart.
type SessionRecord struct {
	Token          string
	TokenExpiresAt time.Time
	Session        string
	SessionToken   string // token the cached session was established under
}

// TokenValid reports whether the cached token is still usable at now.
func (r SessionRecord) TokenValid(now time.Time) bool {
	return r.Token != "" && now.Before(r.TokenExpiresAt)
}

// SessionValidFor reports whether the cached session is bound to token.
func (r SessionRecord) SessionValidFor(token string) bool {
	return r.Session != "" && r.SessionToken == token
}

// ChatMessage is one turn of an inbound conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultModel is used when the inbound request names no model.
const DefaultModel = "gemini-enterprise"

// GeneratedImage is a raw image payload returned by the upstream service.
type GeneratedImage struct {
	Data     []byte
	MIME     string
	Filename string
}

// ImageArtifact is a generated image given a durable or hosted reference.
// URL is set only when the external hosting path was used.
type ImageArtifact struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MIME     string `json:"mime_type"`
	URL      string `json:"url,omitempty"`
}

// Model is a chat model exposed through the OpenAI-compatible surface.
type Model struct {
	ID        string
	Name      string
	Enabled   bool
	CreatedAt time.Time
}

// GatewayConfig is the operator-managed runtime configuration record.
type GatewayConfig struct {
	Proxy          string
	ImageBaseURL   string
	UploadEndpoint string
	UploadAPIToken string
}

// UploadConfigured reports whether the external hosting path is usable.
func (c GatewayConfig) UploadConfigured() bool {
	return c.UploadEndpoint != "" && c.UploadAPIToken != ""
}

// UpstreamToken is a short-lived credential obtained from the token exchange.
type UpstreamToken struct {
	Value     string
	ExpiresAt time.Time
}

// ChatCall carries everything one upstream chat exchange needs.
type ChatCall struct {
	Token    string
	Session  string
	Messages []ChatMessage
	Model    string
	TeamID   string
	Proxy    string
}

// ChatResult is the upstream outcome: final text plus any generated images.
type ChatResult struct {
	Text   string
	Images []GeneratedImage
}

// Repositories (ports)

type AccountRepository interface {
	Create(ctx Context, a Account) (string, error)
	Update(ctx Context, a Account) error
	Delete(ctx Context, id string) error
	Get(ctx Context, id string) (Account, error)
	List(ctx Context) ([]Account, error)
	// ListAvailable returns available accounts in stable creation order.
	ListAvailable(ctx Context) ([]Account, error)
	SetAvailability(ctx Context, id string, available bool, reason string) error
}

type ModelRepository interface {
	Create(ctx Context, m Model) error
	Update(ctx Context, m Model) error
	Delete(ctx Context, id string) error
	List(ctx Context) ([]Model, error)
	ListEnabled(ctx Context) ([]Model, error)
}

type ConfigRepository interface {
	Get(ctx Context) (GatewayConfig, error)
	Put(ctx Context, c GatewayConfig) error
}

// CursorStore owns the shared round-robin cursor. Advance performs a
// conditional write: it succeeds only if the stored cursor still equals the
// observed snapshot, otherwise it returns ErrConflict.
type CursorStore interface {
	Get(ctx Context) (int64, error)
	Advance(ctx Context, observed int64) error
}

// SessionCache is the keyed token/session record store (account id -> record).
// Injected rather than ambient so it can be substituted in tests.
type SessionCache interface {
	Get(accountID string) (SessionRecord, bool)
	Put(accountID string, rec SessionRecord)
}

// UpstreamClient performs the actual protocol exchange with the AI service.
// Implementations must classify failures with the sentinel errors above;
// callers never inspect error text.
type UpstreamClient interface {
	ExchangeToken(ctx Context, a Account) (UpstreamToken, error)
	EstablishSession(ctx Context, a Account, token string) (string, error)
	Chat(ctx Context, call ChatCall) (ChatResult, error)
}

// Uploader pushes image bytes to the external hosting collaborator and
// returns the relative path it assigned.
type Uploader interface {
	Upload(ctx Context, endpoint, apiToken string, data []byte, filename, mimeType string) (string, error)
}

// ImageCache persists image bytes durably and returns an opaque id.
type ImageCache interface {
	Save(ctx Context, data []byte, mimeType, filename string) (string, error)
}

// Context is an alias so ports read uniformly; adapters pass context.Context.
type Context = context.Context
