// Package room owns the per-room shared state (members, presence, operation
// log, element values) and the lock that serializes access to it.
package room

import (
	"sort"
	"sync"
	"time"

	"collabcore/pkg/logger"
)

type Config struct {
	OpLogCapacity int
	TypingIdle    time.Duration
	// Mirror, when set, receives a copy of every broadcast.
	Mirror func(roomID string, msg []byte)
	// OnCreate runs under the new room's lock on its first use.
	OnCreate func(r *Room)
	// OnTeardown runs under the room lock just before the room is dropped.
	OnTeardown func(r *Room)
}

// Manager maps room ids to rooms. Its own lock only guards the map; room
// state is guarded by each room's lock, so rooms never serialize each other.
// Lock order is room lock, then manager lock.
type Manager struct {
	cfg   Config
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, rooms: make(map[string]*Room)}
}

// Do runs fn with the room's lock held. When create is false and the room
// does not exist, fn is not called and Do returns false.
func (m *Manager) Do(id string, create bool, fn func(r *Room)) bool {
	return m.do(id, create, true, fn)
}

// Peek is Do for an existing room that does not count as activity, so
// background readers do not keep idle rooms alive.
func (m *Manager) Peek(id string, fn func(r *Room)) bool {
	return m.do(id, false, false, fn)
}

func (m *Manager) do(id string, create, touch bool, fn func(r *Room)) bool {
	for {
		m.mu.Lock()
		r, ok := m.rooms[id]
		if !ok {
			if !create {
				m.mu.Unlock()
				return false
			}
			r = newRoom(id, m.cfg)
			m.rooms[id] = r
		}
		m.mu.Unlock()

		r.mu.Lock()
		if r.closed {
			// Torn down while we waited for the lock; look again.
			r.mu.Unlock()
			continue
		}
		if !r.Hydrated && m.cfg.OnCreate != nil {
			m.cfg.OnCreate(r)
		}
		r.Hydrated = true
		fn(r)
		if touch {
			r.LastActive = time.Now()
		}
		if r.teardown {
			r.teardown = false
			if r.Empty() {
				m.drop(r)
			}
		}
		r.mu.Unlock()
		return true
	}
}

// Sweep drops rooms that are empty and untouched for longer than idle.
func (m *Manager) Sweep(idle time.Duration) int {
	dropped := 0
	for _, id := range m.IDs() {
		m.Peek(id, func(r *Room) {
			if r.Empty() && time.Since(r.LastActive) > idle {
				r.teardown = true
				dropped++
			}
		})
	}
	return dropped
}

func (m *Manager) drop(r *Room) {
	if m.cfg.OnTeardown != nil {
		m.cfg.OnTeardown(r)
	}
	r.close()
	m.mu.Lock()
	if m.rooms[r.ID] == r {
		delete(m.rooms, r.ID)
	}
	m.mu.Unlock()
	logger.Sugar.Infof("Closed and cleaned up empty room: %s", r.ID)
}

// IDs returns the ids of all live rooms, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
