package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linguahub/translation-gateway/internal/config"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/resilience"
)

// voiceRSSLocales maps base language codes to VoiceRSS voice locales
var voiceRSSLocales = map[string]string{
	"en": "en-us",
	"hi": "hi-in",
	"es": "es-es",
	"fr": "fr-fr",
	"de": "de-de",
	"it": "it-it",
	"pt": "pt-br",
	"ru": "ru-ru",
	"ja": "ja-jp",
	"ko": "ko-kr",
	"zh": "zh-cn",
	"ar": "ar-sa",
	"bn": "bn-in",
	"ta": "ta-in",
}

// VoiceRSSClient implements Synthesizer using the VoiceRSS HTTP API
type VoiceRSSClient struct {
	config         *config.Config
	apiKey         string
	apiURL         string
	httpClient     *http.Client
	store          *Store
	circuitBreaker *resilience.CircuitBreaker
}

// NewVoiceRSSClient creates a new VoiceRSS TTS client writing audio into store
func NewVoiceRSSClient(cfg *config.Config, store *Store) *VoiceRSSClient {
	return &VoiceRSSClient{
		config: cfg,
		apiKey: cfg.VoiceRSSAPIKey,
		apiURL: "https://api.voicerss.org/",
		httpClient: &http.Client{
			Timeout: cfg.StageTimeoutDuration(),
		},
		store: store,
		circuitBreaker: resilience.NewCircuitBreaker(
			"voicerss",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Synthesize renders text as speech and returns the stored audio reference
func (c *VoiceRSSClient) Synthesize(ctx context.Context, text, languageCode string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("text cannot be empty")
	}

	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("hl", voiceLocale(languageCode))
	form.Set("src", text)
	form.Set("c", c.config.VoiceRSSCodec)
	form.Set("f", "44khz_16bit_mono")

	var audioRef string

	err := c.circuitBreaker.Call(func() error {
		retryConfig := &resilience.RetryConfig{
			MaxAttempts:       c.config.RetryMaxAttempts,
			InitialBackoff:    time.Duration(c.config.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}

		return resilience.Retry(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to make request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("voicerss API returned status %d", resp.StatusCode)
			}

			audioData, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read audio response: %w", err)
			}

			// VoiceRSS signals failures as a 200 with an ERROR text body
			if len(audioData) == 0 {
				return fmt.Errorf("voicerss returned empty audio data")
			}
			if strings.HasPrefix(string(audioData), "ERROR") {
				return fmt.Errorf("voicerss API error: %s", string(audioData))
			}

			ref, err := c.store.Save(audioData, c.config.VoiceRSSCodec)
			if err != nil {
				return err
			}
			audioRef = ref
			return nil
		}, retryConfig, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState("voicerss", int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("voicerss")
		return "", err
	}

	return audioRef, nil
}

// voiceLocale resolves a language code to a VoiceRSS voice locale
func voiceLocale(languageCode string) string {
	code := strings.ToLower(languageCode)
	if idx := strings.Index(code, "-"); idx > 0 {
		code = code[:idx]
	}
	if locale, ok := voiceRSSLocales[code]; ok {
		return locale
	}
	// Unknown languages pass through; VoiceRSS rejects unsupported locales
	return code
}
