package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

func TestResolveUploadsWhenConfigured(t *testing.T) {
	t.Parallel()
	configs := &fakeConfigRepo{cfg: domain.GatewayConfig{
		UploadEndpoint: "https://img.example.com/upload",
		UploadAPIToken: "secret",
	}}
	uploader := &fakeUploader{fn: func(_ []byte, filename, _ string) (string, error) {
		return "/f/" + filename, nil
	}}
	cache := &fakeImageCache{fn: func([]byte, string, string) (string, error) {
		t.Fatal("cache must not be used when upload is configured")
		return "", nil
	}}
	svc := NewImageService(configs, uploader, cache)

	artifacts := svc.Resolve(context.Background(), []domain.GeneratedImage{
		{Data: []byte{1}, MIME: "image/png", Filename: "cat.png"},
	})
	require.Len(t, artifacts, 1)
	assert.Equal(t, "https://img.example.com/f/cat.png", artifacts[0].URL)
	assert.Equal(t, "/f/cat.png", artifacts[0].ID)
	assert.Equal(t, "image/png", artifacts[0].MIME)
}

func TestResolvePrefersExplicitImageBaseURL(t *testing.T) {
	t.Parallel()
	configs := &fakeConfigRepo{cfg: domain.GatewayConfig{
		ImageBaseURL:   "https://cdn.example.com",
		UploadEndpoint: "https://img.example.com/upload",
		UploadAPIToken: "secret",
	}}
	uploader := &fakeUploader{fn: func([]byte, string, string) (string, error) {
		return "/f/1.png", nil
	}}
	svc := NewImageService(configs, uploader, &fakeImageCache{})

	artifacts := svc.Resolve(context.Background(), []domain.GeneratedImage{{Data: []byte{1}}})
	require.Len(t, artifacts, 1)
	assert.Equal(t, "https://cdn.example.com/f/1.png", artifacts[0].URL)
}

func TestResolveFallsBackToCache(t *testing.T) {
	t.Parallel()
	cache := &fakeImageCache{fn: func([]byte, string, string) (string, error) {
		return "01ARZ3NDEKTSV4RRFFQ69G5FAV", nil
	}}
	svc := NewImageService(&fakeConfigRepo{}, &fakeUploader{}, cache)

	artifacts := svc.Resolve(context.Background(), []domain.GeneratedImage{
		{Data: []byte{1}, MIME: "image/jpeg"},
	})
	require.Len(t, artifacts, 1)
	assert.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", artifacts[0].ID)
	assert.Empty(t, artifacts[0].URL)
	assert.Equal(t, "image.png", artifacts[0].Filename)
}

func TestResolveSkipsFailingImages(t *testing.T) {
	t.Parallel()
	configs := &fakeConfigRepo{cfg: domain.GatewayConfig{
		UploadEndpoint: "https://img.example.com/upload",
		UploadAPIToken: "secret",
	}}
	calls := 0
	uploader := &fakeUploader{fn: func(_ []byte, filename, _ string) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("upstream hiccup")
		}
		return "/f/" + filename, nil
	}}
	svc := NewImageService(configs, uploader, &fakeImageCache{})

	artifacts := svc.Resolve(context.Background(), []domain.GeneratedImage{
		{Data: []byte{1}, Filename: "one.png"},
		{Data: []byte{2}, Filename: "two.png"},
		{Data: []byte{3}, Filename: "three.png"},
	})
	require.Len(t, artifacts, 2)
	assert.Equal(t, "one.png", artifacts[0].Filename)
	assert.Equal(t, "three.png", artifacts[1].Filename)
}

func TestResolveConfigErrorFallsBackToCache(t *testing.T) {
	t.Parallel()
	configs := &fakeConfigRepo{err: errors.New("db down")}
	cache := &fakeImageCache{fn: func([]byte, string, string) (string, error) {
		return "id-1", nil
	}}
	svc := NewImageService(configs, &fakeUploader{}, cache)

	artifacts := svc.Resolve(context.Background(), []domain.GeneratedImage{{Data: []byte{1}}})
	require.Len(t, artifacts, 1)
	assert.Equal(t, "id-1", artifacts[0].ID)
}

func TestResolveNoImages(t *testing.T) {
	t.Parallel()
	svc := NewImageService(&fakeConfigRepo{}, &fakeUploader{}, &fakeImageCache{})
	assert.Nil(t, svc.Resolve(context.Background(), nil))
}

func TestStripTrailingSegment(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"https://img.example.com/upload", "https://img.example.com"},
		{"https://img.example.com/api/upload", "https://img.example.com/api"},
		{"https://img.example.com/upload?x=1", "https://img.example.com"},
		{"not a url", "not a url"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stripTrailingSegment(tc.in), tc.in)
	}
}
