package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/linguahub/translation-gateway/internal/auth"
	"github.com/linguahub/translation-gateway/internal/config"
	"github.com/linguahub/translation-gateway/internal/history"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/pipeline"
	"github.com/linguahub/translation-gateway/internal/room"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; token auth gates
		// the translation operations instead
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// PipelineRunner runs one utterance through the translation stages
type PipelineRunner interface {
	RunAudioPipeline(ctx context.Context, utt *pipeline.Utterance) (*pipeline.Result, error)
	RunTextPipeline(ctx context.Context, utt *pipeline.Utterance) (*pipeline.Result, error)
}

// wsConn is the subset of *websocket.Conn the session uses
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Gateway holds the shared collaborators behind every WebSocket session
type Gateway struct {
	cfg      *config.Config
	runner   PipelineRunner
	registry *room.Registry
	auth     *auth.Authenticator
	recorder history.Recorder
	logger   zerolog.Logger
}

// New creates a gateway over the given collaborators
func New(cfg *config.Config, runner PipelineRunner, registry *room.Registry, authenticator *auth.Authenticator, recorder history.Recorder, logger zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		runner:   runner,
		registry: registry,
		auth:     authenticator,
		recorder: recorder,
		logger:   logger,
	}
}

// Session holds the state of a single WebSocket connection
type Session struct {
	id            string
	correlationID string
	identity      auth.Identity
	roomID        string

	conn     wsConn
	outbound chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once

	gw        *Gateway
	logger    zerolog.Logger
	startedAt time.Time
}

// HandleWS is the entry point for translation WebSocket connections. The room
// name comes from the request path; absent a room segment, connections land in
// the default room.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, _ := g.auth.Authenticate(r)
	roomID := roomName(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	session := g.newSession(conn, identity, roomID)
	session.start()
	session.run()
}

func roomName(r *http.Request) string {
	if name := r.PathValue("room"); name != "" {
		return name
	}
	return "default"
}

func (g *Gateway) newSession(conn wsConn, identity auth.Identity, roomID string) *Session {
	correlationID := observability.NewCorrelationID()
	sessionID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:            sessionID,
		correlationID: correlationID,
		identity:      identity,
		roomID:        roomID,
		conn:          conn,
		outbound:      make(chan []byte, g.cfg.OutboundQueueSize),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		gw:            g,
		logger:        observability.SessionLogger(correlationID, sessionID, roomID),
		startedAt:     time.Now(),
	}
}

// start joins the room, sends the connection ack, and launches the write pump
func (s *Session) start() {
	observability.RecordConnectionOpen()
	s.gw.registry.JoinOrCreate(s.roomID, s)

	go s.writePump()

	s.TrySend(marshalFrame(connectionEstablishedFrame{
		Type:     "connection_established",
		Message:  fmt.Sprintf("Connected to translation room: %s", s.roomID),
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
		Status:   "connected",
	}))

	s.logger.Info().
		Str("username", s.identity.Username).
		Bool("authenticated", s.identity.Authenticated).
		Msg("Session connected")
}

// run blocks on the receive loop until the connection errors or closes.
// Handlers execute sequentially here; pipeline runs are spawned per utterance.
func (s *Session) run() {
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		s.handleFrame(data)
	}
}

// writePump serializes all outbound writes onto the connection
func (s *Session) writePump() {
	for {
		select {
		case data := <-s.outbound:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn().Err(err).Msg("WebSocket write error")
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// SessionID returns the unique connection identifier
func (s *Session) SessionID() string { return s.id }

// Identity returns the principal behind the session
func (s *Session) Identity() auth.Identity { return s.identity }

// TrySend queues a frame without blocking. Frames to a closed session or a
// full queue are dropped.
func (s *Session) TrySend(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.outbound <- data:
		return true
	default:
		s.logger.Warn().Msg("Outbound queue full, dropping frame")
		return false
	}
}

// Close tears the session down: leaves the room, notifies remaining members,
// cancels in-flight pipeline runs, and closes the connection. Safe to call
// more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)

		// Only announce the departure if the session was still a member;
		// an earlier leave_room already told the room.
		if s.gw.registry.Leave(s.roomID, s.id) {
			s.gw.registry.Broadcast(s.roomID, marshalFrame(membershipFrame{
				Type:     "user_left",
				UserID:   s.identity.UserID,
				Username: s.identity.Username,
			}), s.id)
		}

		s.conn.Close()
		observability.RecordConnectionClose(s.startedAt)

		s.logger.Info().
			Str("username", s.identity.Username).
			Dur("duration", time.Since(s.startedAt)).
			Msg("Session disconnected")
	})
}
