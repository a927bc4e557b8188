package socket

import (
	"context"
	"sync"
	"time"

	"collabcore/internal/collab/model"
	"collabcore/internal/collab/room"
	"collabcore/pkg/logger"
)

const storeTimeout = 5 * time.Second

// pendingSaves counts teardown writes still in flight per room id, so a room
// recreated under the same id hydrates only after they land.
type pendingSaves struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count map[string]int
}

func newPendingSaves() *pendingSaves {
	p := &pendingSaves{count: make(map[string]int)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pendingSaves) begin(roomID string) {
	p.mu.Lock()
	p.count[roomID]++
	p.mu.Unlock()
}

func (p *pendingSaves) done(roomID string) {
	p.mu.Lock()
	p.count[roomID]--
	if p.count[roomID] <= 0 {
		delete(p.count, roomID)
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *pendingSaves) wait(roomID string) {
	p.mu.Lock()
	for p.count[roomID] > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// SaveWorker periodically hands dirty element state to the store and drops
// rooms that have been empty for longer than the idle TTL. It flushes once
// more when ctx ends.
func (h *Hub) SaveWorker(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Flush(context.Background())
			return
		case <-ticker.C:
			h.Flush(ctx)
			if n := h.Rooms.Sweep(h.cfg.RoomIdleTTL); n > 0 {
				logger.Sugar.Infof("Swept %d idle rooms", n)
			}
		}
	}
}

// Flush writes every dirty element to the store and returns how many were
// saved. Store I/O happens outside the room locks.
func (h *Hub) Flush(ctx context.Context) int {
	if h.store == nil {
		return 0
	}
	saved := 0
	for _, id := range h.Rooms.IDs() {
		var states []model.ElementState
		h.Rooms.Peek(id, func(r *room.Room) {
			states = r.DirtyStates()
		})
		if len(states) == 0 {
			continue
		}

		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := h.store.SaveElements(sctx, id, states)
		cancel()
		if err != nil {
			// Leave the dirty marks; the next tick retries.
			logger.Sugar.Errorf("Failed to save elements of room %s: %v", id, err)
			continue
		}

		// Only clear what has not changed again since the snapshot.
		h.Rooms.Peek(id, func(r *room.Room) {
			r.ClearDirty(states)
		})
		saved += len(states)
		logger.Sugar.Infof("Auto-saved %d elements of room %s", len(states), id)
	}
	return saved
}

// hydrate loads the last persisted element state into a new room.
func (h *Hub) hydrate(r *room.Room) {
	if h.store == nil {
		return
	}
	h.saving.wait(r.ID)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	states, err := h.store.LoadElements(ctx, r.ID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load elements of room %s: %v", r.ID, err)
		return
	}
	for _, st := range states {
		r.Doc.Elements[st.ElementID] = st
	}
}

func (h *Hub) persistOnTeardown(r *room.Room) {
	if h.store == nil {
		return
	}
	states := r.DirtyStates()
	if len(states) == 0 {
		return
	}
	roomID := r.ID
	h.saving.begin(roomID)
	go func() {
		defer h.saving.done(roomID)
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := h.store.SaveElements(ctx, roomID, states); err != nil {
			logger.Sugar.Errorf("Failed to save room %s on close: %v", roomID, err)
		}
	}()
}
