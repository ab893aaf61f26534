// Package cfbed is a client for the cfbed image-hosting service.
//
// Uploads are multipart POSTs authenticated through an authCode query
// parameter; the service answers with a JSON array whose first element
// carries the relative path it assigned, e.g. [{"src":"/file/abc_img.png"}].
package cfbed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// Client implements domain.Uploader.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a Client with a default timeout.
func New(cfg config.Config) *Client {
	return &Client{cfg: cfg, hc: &http.Client{Timeout: 30 * time.Second}}
}

// Upload pushes bytes to the hosting service and returns the relative path.
// 5xx and network faults are retried with exponential backoff; 4xx are
// permanent.
func (c *Client) Upload(ctx domain.Context, endpoint, apiToken string, data []byte, filename, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}

	q := url.Values{}
	q.Set("authCode", apiToken)
	q.Set("uploadChannel", "telegram")
	q.Set("serverCompress", "true")
	q.Set("autoRetry", "true")
	q.Set("uploadNameType", "default")
	q.Set("returnFormat", "default")
	uploadURL := endpoint + "?" + q.Encode()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("op=cfbed.upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("op=cfbed.upload write: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("op=cfbed.upload close: %w", err)
	}
	body := buf.Bytes()

	var src string
	op := func() error {
		// Recreate request each attempt to avoid reusing consumed bodies
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			slog.Warn("cfbed upload 4xx", slog.Int("status", resp.StatusCode), slog.String("body", string(snippet)))
			return backoff.Permanent(fmt.Errorf("upload status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("upload status %d", resp.StatusCode)
		}
		var out []struct {
			Src string `json:"src"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode upload response: %w", err))
		}
		if len(out) == 0 || out[0].Src == "" {
			return backoff.Permanent(fmt.Errorf("unexpected upload response shape"))
		}
		src = out[0].Src
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = c.cfg.UploadMaxElapsedTime
	expo.InitialInterval = c.cfg.UploadInitialInterval
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", fmt.Errorf("op=cfbed.upload: %w", err)
	}
	return src, nil
}
