package cfbed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
)

func testUploader() *Client {
	return New(config.Config{
		UploadMaxElapsedTime:  2 * time.Second,
		UploadInitialInterval: 10 * time.Millisecond,
	})
}

func TestUploadHappyPath(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "secret-token", q.Get("authCode"))
		assert.Equal(t, "telegram", q.Get("uploadChannel"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		assert.Equal(t, "cat.png", header.Filename)

		_, _ = w.Write([]byte(`[{"src":"/file/abc_cat.png"}]`))
	}))
	defer srv.Close()

	src, err := testUploader().Upload(context.Background(), srv.URL, "secret-token", []byte{1, 2, 3}, "cat.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/file/abc_cat.png", src)
}

func TestUploadRetriesServerErrors(t *testing.T) {
	t.Parallel()
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"src":"/file/ok.png"}]`))
	}))
	defer srv.Close()

	src, err := testUploader().Upload(context.Background(), srv.URL, "tok", []byte{1}, "a.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/file/ok.png", src)
	assert.Equal(t, 3, attempts)
}

func TestUploadClientErrorIsPermanent(t *testing.T) {
	t.Parallel()
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testUploader().Upload(context.Background(), srv.URL, "bad-token", []byte{1}, "a.png", "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, 1, attempts, "4xx must not be retried")
}

func TestUploadUnexpectedShapeIsPermanent(t *testing.T) {
	t.Parallel()
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testUploader().Upload(context.Background(), srv.URL, "tok", []byte{1}, "a.png", "image/png")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestUploadDetectsMIMEWhenMissing(t *testing.T) {
	t.Parallel()
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`[{"src":"/file/x.png"}]`))
	}))
	defer srv.Close()

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	_, err := testUploader().Upload(context.Background(), srv.URL, "tok", png, "x.png", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data"))
}
