// Package ntfy sends push notifications through an ntfy server.
package ntfy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mholzer/restic-backup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for notification operations.
type Service interface {
	Send(ctx context.Context, cfg models.NtfyConfig, n models.Notification) *models.NtfyResult
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the ntfy Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new ntfy service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// NewWithClient creates a new ntfy service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Send posts one fire-and-forget notification. It never fails the caller:
// incomplete settings make it a no-op, and transport or status failures
// are only recorded in the result.
func (s *Impl) Send(ctx context.Context, cfg models.NtfyConfig, n models.Notification) *models.NtfyResult {
	result := &models.NtfyResult{}

	if !cfg.Complete() {
		s.logger.Debug().Msg("ntfy settings incomplete, skipping notification")
		result.Skipped = true
		return result
	}

	url := strings.TrimRight(cfg.URL, "/") + "/" + cfg.Topic

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(n.Message))
	if err != nil {
		result.Error = fmt.Errorf("creating notification request: %w", err)
		return result
	}

	req.Header.Set("Authorization", "Bearer "+cfg.Token)
	req.Header.Set("Title", n.Title)
	if n.Tags != "" {
		req.Header.Set("Tags", n.Tags)
	}

	s.logger.Info().Str("topic", cfg.Topic).Str("title", n.Title).Msg("sending ntfy notification")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("sending notification: %w", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Error = fmt.Errorf("ntfy returned status %d", resp.StatusCode)
		return result
	}

	result.Sent = true
	return result
}
