package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/linguahub/translation-gateway/internal/auth"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/stt"
	"github.com/linguahub/translation-gateway/internal/translate"
	"github.com/linguahub/translation-gateway/internal/tts"
)

// AudioUnavailable is the audio reference used when synthesis failed but the
// text result is still delivered.
const AudioUnavailable = "unavailable"

// ErrNoSpeech is returned by RunAudioPipeline when transcription produced no
// text. It is a user-facing notice, not a hard failure.
var ErrNoSpeech = errors.New("no speech detected")

// Utterance is one unit of audio or text submitted for translation
type Utterance struct {
	Audio      []byte // Raw audio bytes (audio pipeline only)
	Text       string // Literal text (text pipeline only)
	SourceLang string
	TargetLang string
	Identity   auth.Identity
	Timestamp  string // Client-supplied, echoed back unvalidated
}

// Result carries the outputs and timing of one pipeline run
type Result struct {
	TranscribedText string
	TranslatedText  string
	AudioRef        string

	TranscribeTime time.Duration
	TranslateTime  time.Duration
	SynthesizeTime time.Duration
	TotalTime      time.Duration

	// Realtime marks whether the total time met the real-time target.
	// Informational only; slow results are still delivered.
	Realtime bool

	// Degraded marks that translation fell back to the source text or the
	// audio reference is unavailable.
	Degraded bool
}

// Config bounds each stage and classifies total latency
type Config struct {
	StageTimeout   time.Duration // Per external call
	RealtimeTarget time.Duration // Total <= this marks the result real-time
	SlowCeiling    time.Duration // Total above this logs a warning
}

// Runner drives the transcribe -> translate -> synthesize pipeline for one
// utterance at a time. Runners hold no mutable state; concurrent runs need no
// coordination.
type Runner struct {
	transcriber stt.Transcriber
	translator  translate.Translator
	synthesizer tts.Synthesizer
	cfg         Config
	logger      zerolog.Logger
}

// NewRunner creates a pipeline runner over the three stage clients
func NewRunner(transcriber stt.Transcriber, translator translate.Translator, synthesizer tts.Synthesizer, cfg Config, logger zerolog.Logger) *Runner {
	return &Runner{
		transcriber: transcriber,
		translator:  translator,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      logger,
	}
}

// RunAudioPipeline transcribes, translates, and synthesizes one audio
// utterance. A blank transcript returns ErrNoSpeech alongside the partial
// result; stage failures past transcription degrade instead of aborting.
func (r *Runner) RunAudioPipeline(ctx context.Context, utt *Utterance) (*Result, error) {
	result := &Result{}

	start := time.Now()
	transcript, err := r.transcribe(ctx, utt.Audio, utt.SourceLang)
	result.TranscribeTime = time.Since(start)
	observability.RecordStage("transcribe", result.TranscribeTime, err == nil)

	if err != nil {
		// Transcription failure follows the same policy as silence: the
		// caller sends a try-again notice and no further stages run.
		r.logger.Warn().Err(err).Str("source_lang", utt.SourceLang).Msg("Transcription failed")
		observability.RecordError("transcribe_error", "pipeline")
		transcript = ""
	}

	if strings.TrimSpace(transcript) == "" {
		result.TotalTime = result.TranscribeTime
		observability.RecordPipeline("audio", "no_speech", result.TotalTime, false)
		return result, ErrNoSpeech
	}

	result.TranscribedText = transcript
	r.finishStages(ctx, utt, result)
	r.classify("audio", result)
	return result, nil
}

// RunTextPipeline translates and synthesizes one text utterance
func (r *Runner) RunTextPipeline(ctx context.Context, utt *Utterance) (*Result, error) {
	result := &Result{TranscribedText: utt.Text}
	r.finishStages(ctx, utt, result)
	r.classify("text", result)
	return result, nil
}

// finishStages runs the translate and synthesize stages over the transcribed
// text already recorded in result
func (r *Runner) finishStages(ctx context.Context, utt *Utterance, result *Result) {
	sourceLang := BaseLang(utt.SourceLang)

	start := time.Now()
	translated, err := r.translateText(ctx, result.TranscribedText, sourceLang, utt.TargetLang)
	result.TranslateTime = time.Since(start)
	observability.RecordStage("translate", result.TranslateTime, err == nil)

	if err != nil {
		// Graceful degradation: the user sees the original text instead
		// of nothing.
		r.logger.Warn().Err(err).
			Str("source_lang", sourceLang).
			Str("target_lang", utt.TargetLang).
			Msg("Translation failed, falling back to source text")
		observability.RecordError("translate_error", "pipeline")
		translated = result.TranscribedText
		result.Degraded = true
	}
	result.TranslatedText = translated

	start = time.Now()
	audioRef, err := r.synthesize(ctx, translated, utt.TargetLang)
	result.SynthesizeTime = time.Since(start)
	observability.RecordStage("synthesize", result.SynthesizeTime, err == nil)

	if err != nil {
		// Text results are still delivered without audio.
		r.logger.Warn().Err(err).Str("target_lang", utt.TargetLang).Msg("Synthesis failed, audio unavailable")
		observability.RecordError("synthesize_error", "pipeline")
		audioRef = AudioUnavailable
		result.Degraded = true
	}
	result.AudioRef = audioRef

	result.TotalTime = result.TranscribeTime + result.TranslateTime + result.SynthesizeTime
}

// classify finalizes the timing flags and metrics for a completed run
func (r *Runner) classify(kind string, result *Result) {
	result.Realtime = result.TotalTime <= r.cfg.RealtimeTarget

	if result.TotalTime > r.cfg.SlowCeiling {
		// Soft ceiling: observability only, the result is still delivered
		r.logger.Warn().
			Dur("total", result.TotalTime).
			Dur("ceiling", r.cfg.SlowCeiling).
			Msg("Pipeline exceeded processing-time ceiling")
	}

	outcome := "completed"
	if result.Degraded {
		outcome = "degraded"
	}
	observability.RecordPipeline(kind, outcome, result.TotalTime, result.Realtime)

	r.logger.Info().
		Dur("transcribe", result.TranscribeTime).
		Dur("translate", result.TranslateTime).
		Dur("synthesize", result.SynthesizeTime).
		Dur("total", result.TotalTime).
		Bool("is_realtime", result.Realtime).
		Msg("Pipeline run complete")
}

func (r *Runner) transcribe(ctx context.Context, audio []byte, languageCode string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
	defer cancel()
	return r.transcriber.Transcribe(stageCtx, audio, languageCode)
}

func (r *Runner) translateText(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
	defer cancel()
	return r.translator.Translate(stageCtx, text, sourceLang, targetLang)
}

func (r *Runner) synthesize(ctx context.Context, text, languageCode string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
	defer cancel()
	return r.synthesizer.Synthesize(stageCtx, text, languageCode)
}

// BaseLang strips a regional suffix from a language code ("en-US" -> "en")
func BaseLang(code string) string {
	if idx := strings.Index(code, "-"); idx > 0 {
		return code[:idx]
	}
	return code
}
