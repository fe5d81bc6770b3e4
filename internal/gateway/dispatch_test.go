package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/linguahub/translation-gateway/internal/auth"
	"github.com/linguahub/translation-gateway/internal/config"
	"github.com/linguahub/translation-gateway/internal/history"
	"github.com/linguahub/translation-gateway/internal/pipeline"
	"github.com/linguahub/translation-gateway/internal/room"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("fake connection has no reader")
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeRunner struct {
	audioCalls int32
	textCalls  int32
	audioErr   error

	// blockUntilCancel makes runs wait for context cancellation
	blockUntilCancel bool
}

func (f *fakeRunner) RunAudioPipeline(ctx context.Context, utt *pipeline.Utterance) (*pipeline.Result, error) {
	atomic.AddInt32(&f.audioCalls, 1)
	if f.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.audioErr != nil {
		return &pipeline.Result{}, f.audioErr
	}
	return &pipeline.Result{
		TranscribedText: "Hello",
		TranslatedText:  "Namaste",
		AudioRef:        "/media/audio/tts_abc12345.mp3",
		TotalTime:       800 * time.Millisecond,
		Realtime:        true,
	}, nil
}

func (f *fakeRunner) RunTextPipeline(ctx context.Context, utt *pipeline.Utterance) (*pipeline.Result, error) {
	atomic.AddInt32(&f.textCalls, 1)
	if f.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &pipeline.Result{
		TranscribedText: utt.Text,
		TranslatedText:  "Namaste",
		AudioRef:        "/media/audio/tts_abc12345.mp3",
		TotalTime:       300 * time.Millisecond,
		Realtime:        true,
	}, nil
}

type fakeRecorder struct {
	calls int32
	last  atomic.Value // history.Exchange
}

func (f *fakeRecorder) Record(ctx context.Context, ex history.Exchange) error {
	f.last.Store(ex)
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func newTestGateway(runner PipelineRunner, rec history.Recorder) *Gateway {
	cfg := &config.Config{OutboundQueueSize: 16}
	return New(cfg, runner, room.NewRegistry(zerolog.Nop()), auth.NewAuthenticator("test-secret"), rec, zerolog.Nop())
}

// newTestSession creates a session already joined to its room, without the
// write pump so tests can read queued frames directly.
func newTestSession(gw *Gateway, identity auth.Identity, roomID string) *Session {
	s := gw.newSession(&fakeConn{}, identity, roomID)
	gw.registry.JoinOrCreate(roomID, s)
	return s
}

func authedIdentity() auth.Identity {
	return auth.Identity{UserID: "u1", Username: "alice", Authenticated: true}
}

// nextFrame waits for one queued outbound frame and decodes it
func nextFrame(t *testing.T, s *Session) map[string]interface{} {
	t.Helper()
	select {
	case data := <-s.outbound:
		var frame map[string]interface{}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("Failed to decode frame: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.outbound:
		t.Fatalf("Expected no frame, got %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func audioDataURI() string {
	return "data:audio/webm;base64," + base64.StdEncoding.EncodeToString([]byte("fake-audio-bytes"))
}

func TestUnauthenticatedAudioTranslationRejected(t *testing.T) {
	runner := &fakeRunner{}
	rec := &fakeRecorder{}
	gw := newTestGateway(runner, rec)
	s := newTestSession(gw, auth.Anonymous(), "r1")

	s.handleFrame([]byte(`{"type":"audio_translation","audio_data":"` + audioDataURI() + `"}`))

	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Authentication required" {
		t.Errorf("Expected authentication error, got %v", frame)
	}
	assertNoFrame(t, s)
	if atomic.LoadInt32(&runner.audioCalls) != 0 {
		t.Error("Pipeline should not run for anonymous sessions")
	}
	if atomic.LoadInt32(&rec.calls) != 0 {
		t.Error("Nothing should be persisted for rejected frames")
	}
}

func TestUnauthenticatedTextTranslationRejected(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner, &fakeRecorder{})
	s := newTestSession(gw, auth.Anonymous(), "r1")

	s.handleFrame([]byte(`{"type":"text_translation","text":"Hello"}`))

	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Authentication required" {
		t.Errorf("Expected authentication error, got %v", frame)
	}
	assertNoFrame(t, s)
	if atomic.LoadInt32(&runner.textCalls) != 0 {
		t.Error("Pipeline should not run for anonymous sessions")
	}
}

func TestAudioTranslationDirectReply(t *testing.T) {
	runner := &fakeRunner{}
	rec := &fakeRecorder{}
	gw := newTestGateway(runner, rec)
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"audio_translation","audio_data":"` + audioDataURI() + `","source_lang":"en-US","target_lang":"hi","timestamp":"t0"}`))

	started := nextFrame(t, s)
	if started["type"] != "processing_started" {
		t.Fatalf("Expected processing_started first, got %v", started)
	}

	result := nextFrame(t, s)
	if result["type"] != "conversation_translation" {
		t.Fatalf("Expected conversation_translation, got %v", result)
	}
	if result["transcribed_text"] != "Hello" || result["translated_text"] != "Namaste" {
		t.Errorf("Unexpected texts: %v", result)
	}
	if result["audio_url"] != "/media/audio/tts_abc12345.mp3" {
		t.Errorf("Unexpected audio_url: %v", result["audio_url"])
	}
	if result["is_realtime"] != true {
		t.Errorf("Expected is_realtime true, got %v", result["is_realtime"])
	}
	if result["username"] != "alice" || result["timestamp"] != "t0" {
		t.Errorf("Unexpected identity echo: %v", result)
	}
	if _, ok := result["processing_time"].(float64); !ok {
		t.Errorf("Expected numeric processing_time, got %v", result["processing_time"])
	}

	waitFor(t, "persistence", func() bool { return atomic.LoadInt32(&rec.calls) == 1 })
	ex := rec.last.Load().(history.Exchange)
	if ex.Kind != "audio" || ex.Room != "r1" || ex.SourceLang != "en" {
		t.Errorf("Unexpected exchange: %+v", ex)
	}
}

func TestAudioTranslationNoSpeech(t *testing.T) {
	runner := &fakeRunner{audioErr: pipeline.ErrNoSpeech}
	rec := &fakeRecorder{}
	gw := newTestGateway(runner, rec)
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"audio_translation","audio_data":"` + audioDataURI() + `"}`))

	if frame := nextFrame(t, s); frame["type"] != "processing_started" {
		t.Fatalf("Expected processing_started, got %v", frame)
	}
	frame := nextFrame(t, s)
	if frame["type"] != "processing_error" {
		t.Fatalf("Expected processing_error, got %v", frame)
	}
	if frame["message"] != "No speech detected. Please try speaking clearly." {
		t.Errorf("Unexpected message: %v", frame["message"])
	}
	if atomic.LoadInt32(&rec.calls) != 0 {
		t.Error("No-speech runs should not be persisted")
	}
}

func TestAudioTranslationMissingData(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"audio_translation"}`))

	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Audio data is required" {
		t.Errorf("Expected missing-audio error, got %v", frame)
	}
	if atomic.LoadInt32(&runner.audioCalls) != 0 {
		t.Error("Pipeline should not run without audio")
	}
}

func TestAudioTranslationMalformedPayload(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"audio_translation","audio_data":"not-a-data-uri"}`))

	if frame := nextFrame(t, s); frame["type"] != "processing_started" {
		t.Fatalf("Expected processing_started, got %v", frame)
	}
	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Invalid audio data format" {
		t.Errorf("Expected format error, got %v", frame)
	}
	if atomic.LoadInt32(&runner.audioCalls) != 0 {
		t.Error("Pipeline should not run on malformed audio")
	}
}

func TestTextTranslationBroadcastsToRoom(t *testing.T) {
	runner := &fakeRunner{}
	rec := &fakeRecorder{}
	gw := newTestGateway(runner, rec)
	sender := newTestSession(gw, authedIdentity(), "r1")
	other := newTestSession(gw, auth.Identity{UserID: "u2", Username: "bob", Authenticated: true}, "r1")

	sender.handleFrame([]byte(`{"type":"text_translation","text":"Hello","source_lang":"en","target_lang":"hi"}`))

	for _, s := range []*Session{sender, other} {
		frame := nextFrame(t, s)
		if frame["type"] != "translation_result" {
			t.Fatalf("Expected translation_result, got %v", frame)
		}
		if frame["transcribed_text"] != "Hello" {
			t.Errorf("Expected transcribed_text Hello, got %v", frame["transcribed_text"])
		}
		if frame["translated_text"] == "" {
			t.Error("Expected non-empty translated_text")
		}
		if _, hasTiming := frame["processing_time"]; hasTiming {
			t.Error("Broadcast results should not carry timing fields")
		}
	}

	waitFor(t, "persistence", func() bool { return atomic.LoadInt32(&rec.calls) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&rec.calls); n != 1 {
		t.Errorf("Expected exactly one persistence attempt, got %d", n)
	}
}

func TestTextTranslationBlankText(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"text_translation","text":"   "}`))

	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Text is required" {
		t.Errorf("Expected blank-text error, got %v", frame)
	}
	if atomic.LoadInt32(&runner.textCalls) != 0 {
		t.Error("Pipeline should not run on blank text")
	}
}

func TestMalformedJSON(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{not json`))

	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Invalid JSON data" {
		t.Errorf("Expected JSON error, got %v", frame)
	}
}

func TestUnknownMessageType(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"bogus"}`))

	frame := nextFrame(t, s)
	if frame["type"] != "error" || frame["message"] != "Unknown message type: bogus" {
		t.Errorf("Expected unknown-type error, got %v", frame)
	}
}

func TestJoinRoomThenRoomInfo(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	s.handleFrame([]byte(`{"type":"join_room"}`))

	joined := nextFrame(t, s)
	if joined["type"] != "user_joined" || joined["username"] != "alice" {
		t.Fatalf("Expected user_joined broadcast, got %v", joined)
	}

	s.handleFrame([]byte(`{"type":"get_room_info"}`))

	info := nextFrame(t, s)
	if info["type"] != "room_info" || info["room_name"] != "r1" {
		t.Fatalf("Expected room_info, got %v", info)
	}
	participants, ok := info["participants"].([]interface{})
	if !ok || len(participants) != 1 {
		t.Fatalf("Expected exactly one participant, got %v", info["participants"])
	}
	p := participants[0].(map[string]interface{})
	if p["username"] != "alice" || p["user_id"] != "u1" {
		t.Errorf("Participant should match the joined identity, got %v", p)
	}
}

func TestMembershipFramesAllowedAnonymous(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	s := newTestSession(gw, auth.Anonymous(), "r1")

	s.handleFrame([]byte(`{"type":"join_room"}`))

	frame := nextFrame(t, s)
	if frame["type"] != "user_joined" || frame["username"] != "Anonymous" {
		t.Errorf("Anonymous join should broadcast user_joined, got %v", frame)
	}
}

func TestLeaveRoomBroadcastsUserLeft(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	leaver := newTestSession(gw, authedIdentity(), "r1")
	other := newTestSession(gw, auth.Identity{UserID: "u2", Username: "bob", Authenticated: true}, "r1")

	leaver.handleFrame([]byte(`{"type":"leave_room"}`))

	frame := nextFrame(t, other)
	if frame["type"] != "user_left" || frame["username"] != "alice" {
		t.Errorf("Expected user_left broadcast, got %v", frame)
	}
	members := gw.registry.Members("r1")
	if len(members) != 1 || members[0].Username != "bob" {
		t.Errorf("Expected only bob to remain, got %v", members)
	}
}

func TestJoinRoomFrameDoesNotInflateCounts(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")

	// The session is already a member from connect time; a join_room frame
	// must not count it twice
	s.handleFrame([]byte(`{"type":"join_room"}`))
	if frame := nextFrame(t, s); frame["type"] != "user_joined" {
		t.Fatalf("Expected user_joined broadcast, got %v", frame)
	}

	rooms, members := gw.registry.Counts()
	if rooms != 1 || members != 1 {
		t.Errorf("Expected counts (1, 1) after rejoin, got (%d, %d)", rooms, members)
	}

	s.Close()
	rooms, members = gw.registry.Counts()
	if rooms != 0 || members != 0 {
		t.Errorf("Expected counts (0, 0) after close, got (%d, %d)", rooms, members)
	}
}

func TestCloseAfterLeaveRoomSendsNoSecondUserLeft(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	leaver := newTestSession(gw, authedIdentity(), "r1")
	other := newTestSession(gw, auth.Identity{UserID: "u2", Username: "bob", Authenticated: true}, "r1")

	leaver.handleFrame([]byte(`{"type":"leave_room"}`))
	frame := nextFrame(t, other)
	if frame["type"] != "user_left" || frame["username"] != "alice" {
		t.Fatalf("Expected user_left broadcast, got %v", frame)
	}

	// Disconnecting after an explicit leave must not announce the user again
	leaver.Close()
	assertNoFrame(t, other)
}

func TestRepeatedLeaveRoomFramesBroadcastOnce(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	leaver := newTestSession(gw, authedIdentity(), "r1")
	other := newTestSession(gw, auth.Identity{UserID: "u2", Username: "bob", Authenticated: true}, "r1")

	leaver.handleFrame([]byte(`{"type":"leave_room"}`))
	leaver.handleFrame([]byte(`{"type":"leave_room"}`))

	if frame := nextFrame(t, other); frame["type"] != "user_left" {
		t.Fatalf("Expected user_left broadcast, got %v", frame)
	}
	assertNoFrame(t, other)
}

func TestCloseIsIdempotent(t *testing.T) {
	gw := newTestGateway(&fakeRunner{}, &fakeRecorder{})
	s := newTestSession(gw, authedIdentity(), "r1")
	other := newTestSession(gw, auth.Identity{UserID: "u2", Username: "bob", Authenticated: true}, "r1")

	s.Close()
	s.Close()

	frame := nextFrame(t, other)
	if frame["type"] != "user_left" {
		t.Fatalf("Expected one user_left broadcast, got %v", frame)
	}
	assertNoFrame(t, other)

	if s.TrySend([]byte("x")) {
		t.Error("TrySend should fail after close")
	}
	members := gw.registry.Members("r1")
	if len(members) != 1 {
		t.Errorf("Expected 1 remaining member, got %d", len(members))
	}
}

func TestDisconnectMidPipeline(t *testing.T) {
	runner := &fakeRunner{blockUntilCancel: true}
	rec := &fakeRecorder{}
	gw := newTestGateway(runner, rec)
	s := newTestSession(gw, authedIdentity(), "r1")
	other := newTestSession(gw, auth.Identity{UserID: "u2", Username: "bob", Authenticated: true}, "r1")

	s.handleFrame([]byte(`{"type":"text_translation","text":"Hello"}`))
	waitFor(t, "pipeline start", func() bool { return atomic.LoadInt32(&runner.textCalls) == 1 })

	s.Close()

	// The abandoned run must not broadcast a result or persist anything
	frame := nextFrame(t, other)
	if frame["type"] != "user_left" {
		t.Fatalf("Expected only the user_left broadcast, got %v", frame)
	}
	assertNoFrame(t, other)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&rec.calls) != 0 {
		t.Error("Abandoned runs should not be persisted")
	}
}
