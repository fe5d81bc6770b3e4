package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/linguahub/translation-gateway/internal/auth"
	"github.com/linguahub/translation-gateway/internal/observability"
)

// Member is a session registered in a room. Sessions are owned by the
// transport layer; rooms only hold a reference for fan-out.
type Member interface {
	// SessionID returns the unique connection identifier
	SessionID() string

	// Identity returns the principal behind the session
	Identity() auth.Identity

	// TrySend queues a frame for delivery without blocking. It returns
	// false if the member's queue is full or closed; the frame is dropped.
	TrySend(data []byte) bool
}

// Participant is a summary of one room member
type Participant struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username"`
}

// Room is a named group of members receiving each other's broadcasts
type Room struct {
	name      string
	createdAt time.Time

	mu      sync.RWMutex
	retired bool
	members map[string]Member
	order   []string // session IDs in join order
}

// Name returns the room identifier
func (r *Room) Name() string { return r.name }

// CreatedAt returns when the room was first created
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// MemberCount returns the current number of members
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// add registers a member. ok is false when the room has already been retired
// by the last leave; the caller retries through the registry. added is false
// for a member that was already present, so membership stays a set and the
// caller's bookkeeping only counts genuine joins.
func (r *Room) add(m Member) (added, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retired {
		return false, false
	}
	sid := m.SessionID()
	if _, exists := r.members[sid]; exists {
		return false, true
	}
	r.members[sid] = m
	r.order = append(r.order, sid)
	return true, true
}

// remove drops a member and retires the room when it empties
func (r *Room) remove(sessionID string) (removed, retired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[sessionID]; !ok {
		return false, false
	}
	delete(r.members, sessionID)
	for i, sid := range r.order {
		if sid == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 {
		r.retired = true
		return true, true
	}
	return true, false
}

// snapshot returns the current members in join order
func (r *Room) snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.members[sid])
	}
	return out
}

// Registry is the process-wide mapping from room identifier to active rooms.
// Rooms are created lazily on first join and removed when their last member
// leaves.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	memberCount int
	logger      zerolog.Logger
}

// NewRegistry creates an empty room registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// JoinOrCreate adds the member to the named room, creating it if needed.
// Join-or-create is atomic with respect to concurrent leaves on the same
// room: a join observing a room retired by the last leave retries with a
// fresh room.
func (reg *Registry) JoinOrCreate(roomID string, m Member) *Room {
	for {
		reg.mu.Lock()
		r, ok := reg.rooms[roomID]
		if !ok {
			r = &Room{
				name:      roomID,
				createdAt: time.Now(),
				members:   make(map[string]Member),
			}
			reg.rooms[roomID] = r
			reg.logger.Info().Str("room", roomID).Msg("Room created")
		}
		reg.mu.Unlock()

		added, ok := r.add(m)
		if ok {
			if added {
				reg.mu.Lock()
				reg.memberCount++
				rooms, members := len(reg.rooms), reg.memberCount
				reg.mu.Unlock()

				observability.SetRoomCounts(rooms, members)
				reg.logger.Debug().
					Str("room", roomID).
					Str("session_id", m.SessionID()).
					Str("username", m.Identity().Username).
					Msg("Member joined room")
			}
			return r
		}
		// The room was retired between lookup and add; go again
	}
}

// Leave removes the member from the named room and reports whether it was
// present. The room is dropped from the registry when its last member leaves.
// Unknown rooms and members are no-ops, so disconnect paths can call Leave
// unconditionally and use the return to suppress duplicate notifications.
func (reg *Registry) Leave(roomID, sessionID string) bool {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}

	removed, retired := r.remove(sessionID)
	if !removed {
		return false
	}

	reg.mu.Lock()
	reg.memberCount--
	if retired && reg.rooms[roomID] == r {
		delete(reg.rooms, roomID)
		reg.logger.Info().Str("room", roomID).Msg("Room removed")
	}
	rooms, members := len(reg.rooms), reg.memberCount
	reg.mu.Unlock()

	observability.SetRoomCounts(rooms, members)
	reg.logger.Debug().
		Str("room", roomID).
		Str("session_id", sessionID).
		Msg("Member left room")
	return true
}

// Broadcast queues data on every member of the room, optionally excluding the
// sender. Delivery is per-member and non-blocking: a slow or dead member's
// frame is dropped (drop-new) and never surfaces as an error to the
// broadcaster.
func (reg *Registry) Broadcast(roomID string, data []byte, excludeSessionID string) (sent, dropped int) {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return 0, 0
	}

	for _, m := range r.snapshot() {
		if m.SessionID() == excludeSessionID {
			continue
		}
		if m.TrySend(data) {
			sent++
		} else {
			dropped++
			observability.RecordBroadcastDrop()
		}
	}

	if dropped > 0 {
		reg.logger.Warn().
			Str("room", roomID).
			Int("sent", sent).
			Int("dropped", dropped).
			Msg("Broadcast dropped frames on full member queues")
	}
	return sent, dropped
}

// Members returns summaries of the room's members in join order
func (reg *Registry) Members(roomID string) []Participant {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil
	}

	members := r.snapshot()
	out := make([]Participant, 0, len(members))
	for _, m := range members {
		id := m.Identity()
		out = append(out, Participant{
			SessionID: m.SessionID(),
			UserID:    id.UserID,
			Username:  id.Username,
		})
	}
	return out
}

// Lookup returns the named room if it exists
func (reg *Registry) Lookup(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// Counts returns the number of rooms and total memberships
func (reg *Registry) Counts() (rooms, members int) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms), reg.memberCount
}
