package room

import (
	"encoding/json"
	"sync"
	"time"

	"collabcore/internal/collab/model"
	"collabcore/internal/collab/ot"
	"collabcore/internal/collab/presence"
	"collabcore/pkg/logger"
)

type SessionState int

const (
	Connected SessionState = iota
	GracePeriod
	Removed
)

func (s SessionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case GracePeriod:
		return "grace_period"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Session is the disconnect state of one user in a room.
type Session struct {
	UserID string
	ConnID string
	State  SessionState
	Timer  *time.Timer
	// Gen invalidates timers armed for an earlier disconnect.
	Gen uint64
}

// Room is the shared state of one collaboratively edited document. Every field
// is guarded by the room lock, which Manager.Do holds while running callbacks.
type Room struct {
	ID       string
	Members  *Broadcaster
	Presence *presence.Registry
	Doc      *ot.Document
	Sessions map[string]*Session

	// Hydrated is set once element state has been loaded from the store.
	Hydrated   bool
	Dirty      map[string]string // element id -> operation id awaiting persistence
	LastActive time.Time

	mu       sync.Mutex
	closed   bool
	teardown bool
}

func newRoom(id string, cfg Config) *Room {
	return &Room{
		ID:         id,
		Members:    newBroadcaster(id, cfg.Mirror),
		Presence:   presence.NewRegistry(cfg.TypingIdle),
		Doc:        ot.NewDocument(cfg.OpLogCapacity),
		Sessions:   make(map[string]*Session),
		Dirty:      make(map[string]string),
		LastActive: time.Now(),
	}
}

// Broadcast encodes v and fans it out to every member except exclude.
func (r *Room) Broadcast(v any, exclude string) {
	msg, err := json.Marshal(v)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast for room %s: %v", r.ID, err)
		return
	}
	r.Members.Broadcast(msg, exclude)
}

// Send encodes v and queues it on a single member.
func (r *Room) Send(connID string, v any) bool {
	msg, err := json.Marshal(v)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling message for room %s: %v", r.ID, err)
		return false
	}
	return r.Members.Send(connID, msg)
}

// Owns reports whether connID currently owns userID's session in this room.
func (r *Room) Owns(userID, connID string) bool {
	s, ok := r.Sessions[userID]
	return ok && s.State == Connected && s.ConnID == connID
}

// Empty reports whether nobody is connected or held open for reconnect.
func (r *Room) Empty() bool {
	return r.Members.Len() == 0 && r.Presence.Len() == 0 && len(r.Sessions) == 0
}

// ReleaseIfEmpty asks the manager to tear the room down once the current
// callback returns, provided it is still empty then.
func (r *Room) ReleaseIfEmpty() {
	if r.Empty() {
		r.teardown = true
	}
}

// MarkDirty records that an element's state needs persisting.
func (r *Room) MarkDirty(st model.ElementState) {
	r.Dirty[st.ElementID] = st.OperationID
}

// DirtyStates returns the element states awaiting persistence.
func (r *Room) DirtyStates() []model.ElementState {
	out := make([]model.ElementState, 0, len(r.Dirty))
	for id := range r.Dirty {
		if st, ok := r.Doc.Elements[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

// ClearDirty drops the dirty mark of states that have not changed since they
// were snapshotted.
func (r *Room) ClearDirty(saved []model.ElementState) {
	for _, st := range saved {
		if r.Dirty[st.ElementID] == st.OperationID {
			delete(r.Dirty, st.ElementID)
		}
	}
}

func (r *Room) close() {
	r.closed = true
	r.Presence.Close()
	for _, s := range r.Sessions {
		if s.Timer != nil {
			s.Timer.Stop()
		}
	}
}
