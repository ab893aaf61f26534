// Package gemini implements the upstream boundary against the Gemini
// Enterprise conversational service: token exchange, session establishment
// and the chat call itself.
//
// Failures are classified structurally into the domain sentinels so the retry
// orchestrator never has to inspect error text: 429 maps to
// ErrUpstreamRateLimited, 401/404 to ErrAccountRejected, and everything else
// (network faults, 5xx, malformed payloads) to ErrUpstreamTransient.
package gemini

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// Client implements domain.UpstreamClient over HTTP.
type Client struct {
	cfg config.Config

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL, "" for direct
}

// New constructs a Client.
func New(cfg config.Config) *Client {
	return &Client{cfg: cfg, clients: make(map[string]*http.Client)}
}

// httpClient returns a client routed through the given proxy, building and
// caching one transport per proxy URL.
func (c *Client) httpClient(proxy string) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[proxy]; ok {
		return hc
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			slog.Warn("invalid proxy url, using direct transport", slog.String("proxy", proxy), slog.Any("error", err))
		}
	}
	hc := &http.Client{Timeout: c.cfg.UpstreamTimeout, Transport: transport}
	c.clients[proxy] = hc
	return hc
}

// ExchangeToken trades the account's credential bundle for a short-lived token.
func (c *Client) ExchangeToken(ctx domain.Context, a domain.Account) (domain.UpstreamToken, error) {
	body, _ := json.Marshal(map[string]string{
		"team_id": a.TeamID,
		"csesidx": a.CSesIdx,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UpstreamBaseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return domain.UpstreamToken{}, fmt.Errorf("op=upstream.token: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setIdentity(req, a)
	req.AddCookie(&http.Cookie{Name: "__Secure-C_SES", Value: a.SecureCSes})
	if a.HostCOses != "" {
		req.AddCookie(&http.Cookie{Name: "__Host-C_OSES", Value: a.HostCOses})
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := c.do(req, "", "token", &out); err != nil {
		return domain.UpstreamToken{}, err
	}
	if out.Token == "" {
		return domain.UpstreamToken{}, fmt.Errorf("op=upstream.token empty token: %w", domain.ErrUpstreamTransient)
	}
	expiry := time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return domain.UpstreamToken{Value: out.Token, ExpiresAt: expiry}, nil
}

// EstablishSession opens a conversation session bound to the given token.
func (c *Client) EstablishSession(ctx domain.Context, a domain.Account, token string) (string, error) {
	body, _ := json.Marshal(map[string]string{"team_id": a.TeamID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UpstreamBaseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=upstream.session: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	c.setIdentity(req, a)

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(req, "", "session", &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("op=upstream.session empty session: %w", domain.ErrUpstreamTransient)
	}
	return out.SessionID, nil
}

// Chat performs the conversational exchange and decodes generated images.
// The upstream reply is not incremental; the full text arrives at once.
func (c *Client) Chat(ctx domain.Context, call domain.ChatCall) (domain.ChatResult, error) {
	body, _ := json.Marshal(map[string]any{
		"session_id": call.Session,
		"team_id":    call.TeamID,
		"model":      call.Model,
		"messages":   call.Messages,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UpstreamBaseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=upstream.chat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+call.Token)

	var out struct {
		Text   string `json:"text"`
		Images []struct {
			Base64Data string `json:"base64_data"`
			MIMEType   string `json:"mime_type"`
			FileName   string `json:"file_name"`
		} `json:"images"`
	}
	if err := c.do(req, call.Proxy, "chat", &out); err != nil {
		return domain.ChatResult{}, err
	}

	res := domain.ChatResult{Text: out.Text}
	for _, img := range out.Images {
		if img.Base64Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.Base64Data)
		if err != nil {
			slog.Warn("dropping undecodable upstream image", slog.String("filename", img.FileName), slog.Any("error", err))
			continue
		}
		res.Images = append(res.Images, domain.GeneratedImage{Data: data, MIME: img.MIMEType, Filename: img.FileName})
	}
	return res, nil
}

func (c *Client) setIdentity(req *http.Request, a domain.Account) {
	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}
}

// do executes the request, classifies the status and decodes the 2xx body.
func (c *Client) do(req *http.Request, proxy, op string, out any) error {
	start := time.Now()
	resp, err := c.httpClient(proxy).Do(req)
	observability.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("op=upstream.%s: %v: %w", op, err, domain.ErrUpstreamTransient)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(resp.Body, 512)
		kind := classifyStatus(resp.StatusCode)
		slog.Warn("upstream non-2xx",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body", snippet))
		return fmt.Errorf("op=upstream.%s status %d: %w", op, resp.StatusCode, kind)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Error("upstream decode error", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("op=upstream.%s decode: %v: %w", op, err, domain.ErrUpstreamTransient)
	}
	return nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrUpstreamRateLimited
	case status == http.StatusUnauthorized, status == http.StatusNotFound:
		return domain.ErrAccountRejected
	default:
		return domain.ErrUpstreamTransient
	}
}

func readSnippet(r io.Reader, n int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return string(b)
}
