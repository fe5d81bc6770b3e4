package tts

import "context"

// Synthesizer converts text to speech and returns an opaque audio reference
// (a URL path the client can fetch) rather than raw bytes.
type Synthesizer interface {
	// Synthesize renders text as speech in the given language and returns
	// a reference to the stored audio.
	Synthesize(ctx context.Context, text, languageCode string) (string, error)
}
