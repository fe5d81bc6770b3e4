package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/linguahub/translation-gateway/internal/resilience"
)

// Exchange is one completed translation, recorded for later retrieval
type Exchange struct {
	UserID         string    `json:"user_id,omitempty"`
	Username       string    `json:"username"`
	Room           string    `json:"room"`
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	AudioRef       string    `json:"audio_ref,omitempty"`
	Kind           string    `json:"kind"` // "audio" or "text"
	Timestamp      time.Time `json:"timestamp"`
}

// Recorder persists completed exchanges. Recording is best-effort: failures
// are logged by the implementation and never reach the translation path.
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// NopRecorder discards exchanges. Used when no history backend is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Exchange) error { return nil }

// HTTPRecorder posts exchanges to a history service endpoint
type HTTPRecorder struct {
	url         string
	httpClient  *http.Client
	retryConfig *resilience.RetryConfig
	logger      zerolog.Logger
}

// NewHTTPRecorder creates a recorder targeting the given endpoint
func NewHTTPRecorder(url string, retryConfig *resilience.RetryConfig, logger zerolog.Logger) *HTTPRecorder {
	return &HTTPRecorder{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryConfig: retryConfig,
		logger:      logger.With().Str("component", "history").Logger(),
	}
}

// Record posts the exchange as JSON, retrying transient failures
func (h *HTTPRecorder) Record(ctx context.Context, ex Exchange) error {
	body, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}

	err = resilience.Retry(ctx, func() error {
		return h.post(ctx, body)
	}, h.retryConfig, resilience.IsRetryableNetworkError)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("room", ex.Room).
			Str("username", ex.Username).
			Msg("Failed to record exchange")
		return err
	}
	return nil
}

func (h *HTTPRecorder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build history request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("history service returned %d: %s", resp.StatusCode, string(payload))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
