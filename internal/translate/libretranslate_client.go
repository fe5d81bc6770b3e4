package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linguahub/translation-gateway/internal/config"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/resilience"
)

// LibreTranslateClient implements Translator against a LibreTranslate-compatible API
type LibreTranslateClient struct {
	config         *config.Config
	apiURL         string
	apiKey         string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
}

// libreTranslateRequest is the request payload for the /translate endpoint
type libreTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// libreTranslateResponse is the response payload from the /translate endpoint
type libreTranslateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

// NewLibreTranslateClient creates a new translation client
func NewLibreTranslateClient(cfg *config.Config) *LibreTranslateClient {
	return &LibreTranslateClient{
		config: cfg,
		apiURL: cfg.TranslateURL,
		apiKey: cfg.TranslateAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.StageTimeoutDuration(),
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			"translate",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Translate converts text from sourceLang to targetLang
func (c *LibreTranslateClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	reqBody := libreTranslateRequest{
		Q:      text,
		Source: sourceLang,
		Target: targetLang,
		Format: "text",
		APIKey: c.apiKey,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var translated string

	err = c.circuitBreaker.Call(func() error {
		retryConfig := &resilience.RetryConfig{
			MaxAttempts:       c.config.RetryMaxAttempts,
			InitialBackoff:    time.Duration(c.config.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}

		return resilience.Retry(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to make request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("translate API returned status %d", resp.StatusCode)
			}

			var result libreTranslateResponse
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			if result.Error != "" {
				return fmt.Errorf("translate API error: %s", result.Error)
			}

			translated = result.TranslatedText
			return nil
		}, retryConfig, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState("translate", int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("translate")
		return "", err
	}

	return translated, nil
}
