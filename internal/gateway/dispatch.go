package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linguahub/translation-gateway/internal/history"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/pipeline"
)

// recordTimeout bounds the fire-and-forget persistence attempt
const recordTimeout = 15 * time.Second

// handleFrame decodes one inbound frame and dispatches it by type. A panic in
// a handler is converted into a generic error frame; the connection stays
// open.
func (s *Session) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Handler panic recovered")
			observability.RecordError("handler_panic", "gateway")
			s.TrySend(errorFrameJSON(fmt.Sprintf("Error: %v", r)))
		}
	}()

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.TrySend(errorFrameJSON("Invalid JSON data"))
		return
	}

	observability.RecordInboundFrame(frame.Type)

	switch frame.Type {
	case "audio_translation":
		s.handleAudioTranslation(&frame)
	case "text_translation":
		s.handleTextTranslation(&frame)
	case "join_room":
		s.handleJoinRoom()
	case "leave_room":
		s.handleLeaveRoom()
	case "get_room_info":
		s.handleGetRoomInfo()
	default:
		s.TrySend(errorFrameJSON(fmt.Sprintf("Unknown message type: %s", frame.Type)))
	}
}

// requireAuth sends an error frame and returns false for anonymous sessions
func (s *Session) requireAuth() bool {
	if s.identity.Authenticated {
		return true
	}
	observability.RecordError("auth_required", "gateway")
	s.TrySend(errorFrameJSON("Authentication required"))
	return false
}

func (s *Session) handleAudioTranslation(frame *inboundFrame) {
	if !s.requireAuth() {
		return
	}
	if frame.AudioData == "" {
		s.TrySend(errorFrameJSON("Audio data is required"))
		return
	}

	sourceLang := frame.SourceLang
	if sourceLang == "" {
		sourceLang = "en-US"
	}
	targetLang := frame.TargetLang
	if targetLang == "" {
		targetLang = "hi"
	}

	s.TrySend(marshalFrame(processingStartedFrame{
		Type:     "processing_started",
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
		Message:  "Processing speech...",
		Status:   "processing",
	}))

	audio, err := decodeDataURI(frame.AudioData)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected malformed audio payload")
		s.TrySend(errorFrameJSON("Invalid audio data format"))
		return
	}

	utt := &pipeline.Utterance{
		Audio:      audio,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Identity:   s.identity,
		Timestamp:  frame.Timestamp,
	}

	go s.runAudioUtterance(utt)
}

// runAudioUtterance drives one audio pipeline run and delivers the result as
// a direct reply. Runs on its own goroutine so the receive loop stays
// responsive.
func (s *Session) runAudioUtterance(utt *pipeline.Utterance) {
	res, err := s.gw.runner.RunAudioPipeline(s.ctx, utt)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoSpeech) {
			s.TrySend(marshalFrame(processingErrorFrame{
				Type:     "processing_error",
				UserID:   s.identity.UserID,
				Username: s.identity.Username,
				Message:  "No speech detected. Please try speaking clearly.",
				Status:   "error",
			}))
			return
		}
		// Session cancellation; nobody is listening for the result
		s.logger.Debug().Err(err).Msg("Audio pipeline run abandoned")
		return
	}

	s.TrySend(conversationTranslationJSON(res, utt))
	go s.record("audio", utt, res)
}

func (s *Session) handleTextTranslation(frame *inboundFrame) {
	if !s.requireAuth() {
		return
	}
	if strings.TrimSpace(frame.Text) == "" {
		s.TrySend(errorFrameJSON("Text is required"))
		return
	}

	sourceLang := frame.SourceLang
	if sourceLang == "" {
		sourceLang = "en"
	}
	targetLang := frame.TargetLang
	if targetLang == "" {
		targetLang = "hi"
	}

	utt := &pipeline.Utterance{
		Text:       frame.Text,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Identity:   s.identity,
		Timestamp:  frame.Timestamp,
	}

	go s.runTextUtterance(utt)
}

// runTextUtterance drives one text pipeline run and broadcasts the result to
// the whole room, sender included.
func (s *Session) runTextUtterance(utt *pipeline.Utterance) {
	res, err := s.gw.runner.RunTextPipeline(s.ctx, utt)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Text pipeline run abandoned")
		return
	}

	s.gw.registry.Broadcast(s.roomID, translationResultJSON(res, utt), "")
	go s.record("text", utt, res)
}

func (s *Session) handleJoinRoom() {
	s.gw.registry.JoinOrCreate(s.roomID, s)
	s.gw.registry.Broadcast(s.roomID, marshalFrame(membershipFrame{
		Type:     "user_joined",
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
	}), "")
}

func (s *Session) handleLeaveRoom() {
	if !s.gw.registry.Leave(s.roomID, s.id) {
		return
	}
	s.gw.registry.Broadcast(s.roomID, marshalFrame(membershipFrame{
		Type:     "user_left",
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
	}), "")
}

func (s *Session) handleGetRoomInfo() {
	if _, ok := s.gw.registry.Lookup(s.roomID); !ok {
		s.TrySend(errorFrameJSON("Room not found"))
		return
	}
	s.TrySend(marshalFrame(roomInfoFrame{
		Type:         "room_info",
		RoomName:     s.roomID,
		Participants: s.gw.registry.Members(s.roomID),
		IsActive:     true,
	}))
}

// record persists a completed exchange. One attempt per exchange, detached
// from the session lifecycle so disconnects don't lose history.
func (s *Session) record(kind string, utt *pipeline.Utterance, res *pipeline.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	audioRef := res.AudioRef
	if audioRef == pipeline.AudioUnavailable {
		audioRef = ""
	}

	s.gw.recorder.Record(ctx, history.Exchange{
		UserID:         utt.Identity.UserID,
		Username:       utt.Identity.Username,
		Room:           s.roomID,
		SourceText:     res.TranscribedText,
		TranslatedText: res.TranslatedText,
		SourceLang:     pipeline.BaseLang(utt.SourceLang),
		TargetLang:     utt.TargetLang,
		AudioRef:       audioRef,
		Kind:           kind,
		Timestamp:      time.Now().UTC(),
	})
}

// decodeDataURI extracts and decodes the base64 payload of a data-URI-style
// audio string ("data:audio/webm;base64,....").
func decodeDataURI(data string) ([]byte, error) {
	_, payload, found := strings.Cut(data, ",")
	if !found {
		return nil, fmt.Errorf("missing data URI separator")
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	return decoded, nil
}
