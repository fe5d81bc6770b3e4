package gateway

import (
	"encoding/json"

	"github.com/linguahub/translation-gateway/internal/pipeline"
	"github.com/linguahub/translation-gateway/internal/room"
)

// inboundFrame is the envelope every client frame decodes into. Fields not
// relevant to the frame's type are left at their zero values.
type inboundFrame struct {
	Type       string `json:"type"`
	AudioData  string `json:"audio_data"`
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Timestamp  string `json:"timestamp"`
}

type connectionEstablishedFrame struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

type processingStartedFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

type processingErrorFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

// conversationTranslationFrame is the direct reply to an audio_translation
// request, carrying per-stage and total timing.
type conversationTranslationFrame struct {
	Type            string  `json:"type"`
	TranscribedText string  `json:"transcribed_text"`
	TranslatedText  string  `json:"translated_text"`
	AudioURL        string  `json:"audio_url"`
	SourceLang      string  `json:"source_lang"`
	TargetLang      string  `json:"target_lang"`
	UserID          string  `json:"user_id,omitempty"`
	Username        string  `json:"username"`
	Timestamp       string  `json:"timestamp"`
	SttTime         float64 `json:"stt_time"`
	TranslationTime float64 `json:"translation_time"`
	TtsTime         float64 `json:"tts_time"`
	ProcessingTime  float64 `json:"processing_time"`
	IsRealtime      bool    `json:"is_realtime"`
	Status          string  `json:"status"`
}

// translationResultFrame is the room-broadcast variant, without timing
type translationResultFrame struct {
	Type            string `json:"type"`
	TranscribedText string `json:"transcribed_text"`
	TranslatedText  string `json:"translated_text"`
	AudioURL        string `json:"audio_url"`
	SourceLang      string `json:"source_lang"`
	TargetLang      string `json:"target_lang"`
	UserID          string `json:"user_id,omitempty"`
	Username        string `json:"username"`
	Timestamp       string `json:"timestamp"`
}

type roomInfoFrame struct {
	Type         string             `json:"type"`
	RoomName     string             `json:"room_name"`
	Participants []room.Participant `json:"participants"`
	IsActive     bool               `json:"is_active"`
}

type membershipFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func marshalFrame(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Frame structs contain only marshalable fields
		return []byte(`{"type":"error","message":"internal encoding error"}`)
	}
	return data
}

func errorFrameJSON(message string) []byte {
	return marshalFrame(errorFrame{Type: "error", Message: message})
}

func conversationTranslationJSON(res *pipeline.Result, utt *pipeline.Utterance) []byte {
	return marshalFrame(conversationTranslationFrame{
		Type:            "conversation_translation",
		TranscribedText: res.TranscribedText,
		TranslatedText:  res.TranslatedText,
		AudioURL:        res.AudioRef,
		SourceLang:      utt.SourceLang,
		TargetLang:      utt.TargetLang,
		UserID:          utt.Identity.UserID,
		Username:        utt.Identity.Username,
		Timestamp:       utt.Timestamp,
		SttTime:         res.TranscribeTime.Seconds(),
		TranslationTime: res.TranslateTime.Seconds(),
		TtsTime:         res.SynthesizeTime.Seconds(),
		ProcessingTime:  res.TotalTime.Seconds(),
		IsRealtime:      res.Realtime,
		Status:          "completed",
	})
}

func translationResultJSON(res *pipeline.Result, utt *pipeline.Utterance) []byte {
	return marshalFrame(translationResultFrame{
		Type:            "translation_result",
		TranscribedText: res.TranscribedText,
		TranslatedText:  res.TranslatedText,
		AudioURL:        res.AudioRef,
		SourceLang:      utt.SourceLang,
		TargetLang:      utt.TargetLang,
		UserID:          utt.Identity.UserID,
		Username:        utt.Identity.Username,
		Timestamp:       utt.Timestamp,
	})
}
