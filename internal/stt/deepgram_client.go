package stt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/linguahub/translation-gateway/internal/config"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/resilience"
)

// DeepgramClient implements Transcriber using Deepgram's prerecorded API
type DeepgramClient struct {
	config         *config.Config
	client         *api.Client
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramClient creates a new Deepgram prerecorded transcription client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	circuitBreaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)

	rest := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})

	return &DeepgramClient{
		config:         cfg,
		client:         api.New(rest),
		circuitBreaker: circuitBreaker,
	}
}

// Transcribe sends one utterance to Deepgram and returns the transcript.
// An empty transcript with a nil error means no speech was recognized.
func (d *DeepgramClient) Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.config.DeepgramModel,
		Language:    languageCode,
		Punctuate:   true,
		SmartFormat: true,
	}

	var transcript string

	err := d.circuitBreaker.Call(func() error {
		retryConfig := &resilience.RetryConfig{
			MaxAttempts:       d.config.RetryMaxAttempts,
			InitialBackoff:    time.Duration(d.config.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}

		return resilience.Retry(ctx, func() error {
			res, err := d.client.FromStream(ctx, bytes.NewReader(audio), options)
			if err != nil {
				return fmt.Errorf("deepgram transcription failed: %w", err)
			}

			if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
				// No recognizable speech in the utterance
				transcript = ""
				return nil
			}

			transcript = res.Results.Channels[0].Alternatives[0].Transcript
			return nil
		}, retryConfig, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return "", err
	}

	return transcript, nil
}
