package translate

import "context"

// Translator converts text between languages
type Translator interface {
	// Translate converts text from sourceLang to targetLang. Language codes
	// are base ISO 639-1 codes ("en", "hi"); regional suffixes are the
	// caller's responsibility to strip.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
