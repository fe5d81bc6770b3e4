package stt

import "context"

// Transcriber converts one utterance of recorded audio into text.
// An empty string with a nil error means the service recognized no speech.
type Transcriber interface {
	// Transcribe converts audio bytes to text for the given language code
	// (e.g. "en-US", "hi").
	Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error)
}
