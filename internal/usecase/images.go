package usecase

import (
	"log/slog"
	"net/url"
	"path"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// ImageService turns raw upstream image payloads into referencable artifacts.
// With upload configuration present the bytes go to the external hosting
// collaborator and the artifact carries an absolute URL; otherwise they land
// in the durable cache and the artifact carries only the opaque id.
type ImageService struct {
	configs  domain.ConfigRepository
	uploader domain.Uploader
	cache    domain.ImageCache
}

// NewImageService constructs an ImageService.
func NewImageService(configs domain.ConfigRepository, uploader domain.Uploader, cache domain.ImageCache) *ImageService {
	return &ImageService{configs: configs, uploader: uploader, cache: cache}
}

// Resolve processes every generated image. A failing image is logged and
// skipped; it never fails the overall request.
func (s *ImageService) Resolve(ctx domain.Context, images []domain.GeneratedImage) []domain.ImageArtifact {
	if len(images) == 0 {
		return nil
	}

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		// Chat must still succeed; fall back to the durable cache path.
		slog.Warn("gateway config unavailable, falling back to image cache", slog.Any("error", err))
		cfg = domain.GatewayConfig{}
	}
	useUpload := cfg.UploadConfigured()

	artifacts := make([]domain.ImageArtifact, 0, len(images))
	for _, img := range images {
		filename := img.Filename
		if filename == "" {
			filename = "image.png"
		}

		if useUpload {
			src, err := s.uploader.Upload(ctx, cfg.UploadEndpoint, cfg.UploadAPIToken, img.Data, filename, img.MIME)
			if err != nil {
				slog.Error("image upload failed, skipping artifact", slog.String("filename", filename), slog.Any("error", err))
				observability.ImagesResolvedTotal.WithLabelValues("skipped").Inc()
				continue
			}
			base := cfg.ImageBaseURL
			if base == "" {
				base = stripTrailingSegment(cfg.UploadEndpoint)
			}
			artifacts = append(artifacts, domain.ImageArtifact{
				ID:       src,
				Filename: filename,
				MIME:     img.MIME,
				URL:      base + src,
			})
			observability.ImagesResolvedTotal.WithLabelValues("upload").Inc()
			continue
		}

		id, err := s.cache.Save(ctx, img.Data, img.MIME, filename)
		if err != nil {
			slog.Error("image cache write failed, skipping artifact", slog.String("filename", filename), slog.Any("error", err))
			observability.ImagesResolvedTotal.WithLabelValues("skipped").Inc()
			continue
		}
		artifacts = append(artifacts, domain.ImageArtifact{ID: id, Filename: filename, MIME: img.MIME})
		observability.ImagesResolvedTotal.WithLabelValues("cache").Inc()
	}
	return artifacts
}

// stripTrailingSegment derives a base URL from the upload endpoint by
// removing its last path segment, e.g. https://img.example.com/upload ->
// https://img.example.com.
func stripTrailingSegment(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	dir := path.Dir(u.Path)
	if dir == "/" || dir == "." {
		dir = ""
	}
	u.Path = dir
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
