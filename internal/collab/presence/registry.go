// Package presence tracks the live cursor, selection, lock, typing and status
// of each user in a room.
package presence

import (
	"sort"
	"time"

	"collabcore/internal/collab/model"
)

// Registry holds one Presence per user of a single room. It is not safe for
// concurrent use; the owning room's lock guards every call, including the
// ExpireTyping call made from an idle timer callback.
type Registry struct {
	presences  map[string]*model.Presence
	typing     map[string]*typingTimer
	typingIdle time.Duration
}

type typingTimer struct {
	timer *time.Timer
	gen   uint64
}

func NewRegistry(typingIdle time.Duration) *Registry {
	return &Registry{
		presences:  make(map[string]*model.Presence),
		typing:     make(map[string]*typingTimer),
		typingIdle: typingIdle,
	}
}

// Upsert stores p, replacing any previous presence of the same user.
func (r *Registry) Upsert(p model.Presence) {
	if p.Selection == nil {
		p.Selection = []string{}
	}
	cp := p
	r.presences[p.UserID] = &cp
}

func (r *Registry) Get(userID string) (model.Presence, bool) {
	p, ok := r.presences[userID]
	if !ok {
		return model.Presence{}, false
	}
	return clone(p), true
}

// GetAll returns every presence ordered by user id.
func (r *Registry) GetAll() []model.Presence {
	out := make([]model.Presence, 0, len(r.presences))
	for _, p := range r.presences {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Update applies fn to the stored presence of userID.
func (r *Registry) Update(userID string, fn func(p *model.Presence)) bool {
	p, ok := r.presences[userID]
	if !ok {
		return false
	}
	fn(p)
	return true
}

func (r *Registry) Remove(userID string) (model.Presence, bool) {
	p, ok := r.presences[userID]
	if !ok {
		return model.Presence{}, false
	}
	r.stopTyping(userID)
	delete(r.presences, userID)
	return clone(p), true
}

func (r *Registry) Len() int { return len(r.presences) }

// LockHolder returns the user holding the edit lock on elementID, ignoring
// offline users.
func (r *Registry) LockHolder(elementID string) (string, bool) {
	for id, p := range r.presences {
		if p.ActiveElement == elementID && p.Status != model.StatusOffline {
			return id, true
		}
	}
	return "", false
}

// SetTyping sets the typing flag and reports whether it changed. While the
// flag is on, an idle timer calls onIdle with a generation token after the
// idle timeout; each further SetTyping(true) restarts the timer. onIdle runs
// on the timer goroutine and must take the room lock before calling
// ExpireTyping with the token.
func (r *Registry) SetTyping(userID string, typing bool, onIdle func(gen uint64)) bool {
	p, ok := r.presences[userID]
	if !ok {
		return false
	}
	changed := p.IsTyping != typing
	p.IsTyping = typing
	if !typing {
		r.stopTyping(userID)
		return changed
	}

	tt := r.typing[userID]
	if tt == nil {
		tt = &typingTimer{}
		r.typing[userID] = tt
	} else if tt.timer != nil {
		tt.timer.Stop()
	}
	tt.gen++
	gen := tt.gen
	tt.timer = time.AfterFunc(r.typingIdle, func() { onIdle(gen) })
	return changed
}

// ExpireTyping clears the typing flag if gen still names the latest timer.
// It reports whether the flag was cleared.
func (r *Registry) ExpireTyping(userID string, gen uint64) bool {
	tt, ok := r.typing[userID]
	if !ok || tt.gen != gen {
		return false
	}
	delete(r.typing, userID)
	p, ok := r.presences[userID]
	if !ok || !p.IsTyping {
		return false
	}
	p.IsTyping = false
	return true
}

// ClearTyping drops the flag and its timer without reporting.
func (r *Registry) ClearTyping(userID string) {
	if p, ok := r.presences[userID]; ok {
		p.IsTyping = false
	}
	r.stopTyping(userID)
}

// Close stops every pending idle timer.
func (r *Registry) Close() {
	for id := range r.typing {
		r.stopTyping(id)
	}
}

func (r *Registry) stopTyping(userID string) {
	if tt, ok := r.typing[userID]; ok {
		if tt.timer != nil {
			tt.timer.Stop()
		}
		delete(r.typing, userID)
	}
}

func clone(p *model.Presence) model.Presence {
	cp := *p
	cp.Selection = append([]string{}, p.Selection...)
	return cp
}
