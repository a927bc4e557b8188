package socket

import (
	"context"
	"fmt"
	"time"

	"collabcore/config"
	"collabcore/internal/collab/model"
	"collabcore/internal/collab/ot"
	"collabcore/internal/collab/presence"
	"collabcore/internal/collab/protocol"
	"collabcore/internal/collab/room"
	"collabcore/internal/collab/supervisor"
	"collabcore/pkg/logger"
)

// ElementStore is the durable document store that receives element state
// after the fact.
type ElementStore interface {
	LoadElements(ctx context.Context, roomID string) ([]model.ElementState, error)
	SaveElements(ctx context.Context, roomID string, states []model.ElementState) error
}

// Publisher receives a copy of every room broadcast.
type Publisher interface {
	Publish(roomID string, msg []byte)
}

// Hub routes client messages into the collaboration core.
type Hub struct {
	cfg        config.Collab
	Rooms      *room.Manager
	Engine     *ot.Engine
	Supervisor *supervisor.Supervisor
	store      ElementStore
	saving     *pendingSaves
	now        func() time.Time
}

// NewHub wires the core. store and pub may be nil.
func NewHub(cfg config.Collab, store ElementStore, pub Publisher) *Hub {
	h := &Hub{cfg: cfg, store: store, saving: newPendingSaves(), now: time.Now}
	rc := room.Config{
		OpLogCapacity: cfg.OpLogCapacity,
		TypingIdle:    cfg.TypingIdle,
		OnCreate:      h.hydrate,
		OnTeardown:    h.persistOnTeardown,
	}
	if pub != nil {
		rc.Mirror = pub.Publish
	}
	h.Rooms = room.NewManager(rc)
	h.Engine = ot.NewEngine(cfg.ConcurrencyWindow, ot.WithMaxClockSkew(cfg.MaxClockSkew))
	h.Supervisor = supervisor.New(h.Rooms, cfg.GracePeriod)
	return h
}

// Handle dispatches one validated client message.
func (h *Hub) Handle(c *Client, in *protocol.Inbound) error {
	switch in.Type {
	case protocol.JoinType:
		return h.Join(c, in.Room, in.Username)
	case protocol.LeaveType:
		return h.Leave(c, in.Room)
	case protocol.CursorUpdateType:
		return h.UpdateCursor(c, in.Room, *in.X, *in.Y)
	case protocol.SelectionUpdateType:
		return h.UpdateSelection(c, in.Room, in.ElementIDs)
	case protocol.TypingUpdateType:
		return h.UpdateTyping(c, in.Room, *in.IsTyping)
	case protocol.StatusUpdateType:
		return h.UpdateStatus(c, in.Room, in.Status)
	case protocol.ElementLockType:
		return h.LockElement(c, in.Room, in.ElementID)
	case protocol.ElementUnlockType:
		return h.UnlockElement(c, in.Room, in.ElementID)
	case protocol.ElementMutateType:
		_, err := h.Mutate(c, in.Room, model.Operation{
			ElementID: in.ElementID,
			Kind:      in.OpType,
			OldValue:  in.OldValue,
			NewValue:  in.NewValue,
			Timestamp: protocol.ParseTimestamp(in.Timestamp),
		})
		return err
	}
	return fmt.Errorf("%w: unknown message type %q", model.ErrMalformedMessage, in.Type)
}

// Join puts the client in roomID, creating the room on first use. A client
// already in another room leaves it first. Joining over a live session of the
// same user takes that session over and is announced as a rejoin.
func (h *Hub) Join(c *Client, roomID, username string) error {
	if c.Identity.UserID == "" {
		return model.ErrUnauthenticated
	}
	if roomID == "" {
		return fmt.Errorf("%w: missing room", model.ErrMalformedMessage)
	}
	if prev := c.Room(); prev != "" && prev != roomID {
		h.Leave(c, prev)
	}
	c.detach()

	ident := c.Identity
	if ident.Username == "" {
		ident.Username = username
	}
	if ident.Username == "" {
		ident.Username = ident.UserID
	}

	now := h.now()
	h.Rooms.Do(roomID, true, func(r *room.Room) {
		r.Members.Add(c)
		sess, ok := r.Sessions[ident.UserID]
		takeover := ok && sess.State == room.Connected
		rejoined := h.Supervisor.Connect(r, ident.UserID, c.ID())

		// The fresh presence drops any lock the previous connection held.
		if old, ok := r.Presence.Get(ident.UserID); ok && old.ActiveElement != "" {
			r.Broadcast(protocol.NewElementLockEvent(protocol.ElementUnlockedType, roomID, old, old.ActiveElement, now), c.ID())
		}
		p := model.NewPresence(ident, now)
		r.Presence.ClearTyping(ident.UserID)
		r.Presence.Upsert(p)

		r.Send(c.ID(), protocol.RoomStateEvent{
			Type:      protocol.RoomStateType,
			Room:      roomID,
			Presences: r.Presence.GetAll(),
			Elements:  r.Doc.Values(),
			Timestamp: now,
		})
		notice := protocol.UserJoinedType
		if rejoined || takeover {
			notice = protocol.UserRejoinedType
		}
		r.Broadcast(protocol.NewUserEvent(notice, roomID, p, now), c.ID())
		logger.Sugar.Infof("User %s joined room %s (connections: %d)", ident.UserID, roomID, r.Members.Len())
	})

	userID, connID := ident.UserID, c.ID()
	c.attach(roomID,
		presence.NewThrottle(h.cfg.CursorInterval, func() { h.flushCursor(roomID, userID, connID) }),
		presence.NewThrottle(h.cfg.CursorInterval, func() { h.flushSelection(roomID, userID, connID) }),
	)
	return nil
}

// Leave removes the client's user from roomID immediately.
func (h *Hub) Leave(c *Client, roomID string) error {
	if c.Room() != roomID {
		return fmt.Errorf("%w: %s", model.ErrUnknownRoom, roomID)
	}
	c.detach()
	h.Rooms.Do(roomID, false, func(r *room.Room) {
		h.Supervisor.Leave(r, c.Identity.UserID, c.ID())
	})
	return nil
}

// Disconnect runs when the client's channel closes.
func (h *Hub) Disconnect(c *Client) {
	roomID := c.detach()
	c.Close()
	if roomID == "" {
		return
	}
	h.Supervisor.Disconnect(roomID, c.Identity.UserID, c.ID())
}

func (h *Hub) UpdateCursor(c *Client, roomID string, x, y float64) error {
	now := h.now()
	err := h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		r.Presence.Update(userID, func(p *model.Presence) {
			p.Cursor = model.Cursor{X: x, Y: y}
			p.LastSeen = now
		})
		return nil
	})
	if err != nil {
		return err
	}
	if cursor, _ := c.throttles(); cursor != nil {
		cursor.Submit()
	}
	return nil
}

func (h *Hub) UpdateSelection(c *Client, roomID string, elementIDs []string) error {
	now := h.now()
	err := h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		r.Presence.Update(userID, func(p *model.Presence) {
			p.Selection = append([]string{}, elementIDs...)
			p.LastSeen = now
		})
		return nil
	})
	if err != nil {
		return err
	}
	if _, selection := c.throttles(); selection != nil {
		selection.Submit()
	}
	return nil
}

func (h *Hub) UpdateTyping(c *Client, roomID string, typing bool) error {
	return h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		changed := r.Presence.SetTyping(userID, typing, func(gen uint64) {
			h.expireTyping(roomID, userID, gen)
		})
		if changed {
			p, _ := r.Presence.Get(userID)
			r.Broadcast(typingEvent(roomID, p, h.now()), c.ID())
		}
		return nil
	})
}

func (h *Hub) UpdateStatus(c *Client, roomID string, status model.Status) error {
	if status != model.StatusOnline && status != model.StatusAway {
		return fmt.Errorf("%w: status %q", model.ErrMalformedMessage, status)
	}
	now := h.now()
	return h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		r.Presence.Update(userID, func(p *model.Presence) {
			p.Status = status
			p.LastSeen = now
		})
		p, _ := r.Presence.Get(userID)
		r.Broadcast(protocol.StatusEvent{
			Type:      protocol.StatusChangedType,
			Room:      roomID,
			UserID:    p.UserID,
			Username:  p.Username,
			Status:    status,
			Timestamp: now,
		}, c.ID())
		return nil
	})
}

// LockElement gives the client's user the edit lock on elementID, releasing
// any lock the user held on another element.
func (h *Hub) LockElement(c *Client, roomID, elementID string) error {
	now := h.now()
	return h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		if holder, ok := r.Presence.LockHolder(elementID); ok && holder != userID {
			return fmt.Errorf("%w: %s held by %s", model.ErrElementLocked, elementID, holder)
		}
		p, _ := r.Presence.Get(userID)
		if p.ActiveElement == elementID {
			return nil
		}
		if p.ActiveElement != "" {
			r.Broadcast(protocol.NewElementLockEvent(protocol.ElementUnlockedType, roomID, p, p.ActiveElement, now), c.ID())
		}
		r.Presence.Update(userID, func(p *model.Presence) { p.ActiveElement = elementID })
		r.Broadcast(protocol.NewElementLockEvent(protocol.ElementLockedType, roomID, p, elementID, now), c.ID())
		return nil
	})
}

func (h *Hub) UnlockElement(c *Client, roomID, elementID string) error {
	now := h.now()
	return h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		p, _ := r.Presence.Get(userID)
		if p.ActiveElement != elementID {
			return nil
		}
		r.Presence.Update(userID, func(p *model.Presence) { p.ActiveElement = "" })
		r.Broadcast(protocol.NewElementLockEvent(protocol.ElementUnlockedType, roomID, p, elementID, now), c.ID())
		return nil
	})
}

// Mutate routes an element mutation through the OT engine and broadcasts
// the authoritative result to the whole room, sender included.
func (h *Hub) Mutate(c *Client, roomID string, op model.Operation) (ot.Result, error) {
	var res ot.Result
	err := h.withOwner(c, roomID, func(r *room.Room, userID string) error {
		op.Room = roomID
		op.UserID = userID
		res = h.apply(r, op)
		return nil
	})
	return res, err
}

// ApplyOperation submits an operation out of band, under the same room lock
// as client traffic.
func (h *Hub) ApplyOperation(op model.Operation) (ot.Result, error) {
	switch {
	case op.Room == "":
		return ot.Result{}, fmt.Errorf("%w: missing room", model.ErrMalformedMessage)
	case op.UserID == "":
		return ot.Result{}, fmt.Errorf("%w: missing user_id", model.ErrMalformedMessage)
	case op.ElementID == "":
		return ot.Result{}, fmt.Errorf("%w: missing element_id", model.ErrMalformedMessage)
	case !op.Kind.Valid():
		return ot.Result{}, fmt.Errorf("%w: unknown op_type %q", model.ErrMalformedMessage, op.Kind)
	}
	var res ot.Result
	h.Rooms.Do(op.Room, true, func(r *room.Room) {
		res = h.apply(r, op)
	})
	return res, nil
}

// History returns recorded operations oldest first, plus the number held.
func (h *Hub) History(roomID string, limit, offset int) ([]model.Operation, int) {
	ops, total := []model.Operation{}, 0
	h.Rooms.Peek(roomID, func(r *room.Room) {
		ops = r.Doc.Log.All(limit, offset)
		total = r.Doc.Log.Len()
	})
	return ops, total
}

func (h *Hub) Presences(roomID string) []model.Presence {
	out := []model.Presence{}
	h.Rooms.Peek(roomID, func(r *room.Room) {
		out = r.Presence.GetAll()
	})
	return out
}

// Stats counts live rooms and their connections.
func (h *Hub) Stats() (rooms, connections int) {
	for _, id := range h.Rooms.IDs() {
		if h.Rooms.Peek(id, func(r *room.Room) { connections += r.Members.Len() }) {
			rooms++
		}
	}
	return rooms, connections
}

func (h *Hub) apply(r *room.Room, op model.Operation) ot.Result {
	res := h.Engine.Apply(r.Doc, op)
	r.MarkDirty(res.State)
	r.Broadcast(protocol.ElementUpdateResolvedEvent{
		Type:         protocol.ElementUpdateResolvedType,
		Room:         r.ID,
		ElementID:    res.Operation.ElementID,
		OpType:       res.Operation.Kind,
		Value:        res.State.Value,
		Deleted:      res.State.Deleted,
		ResolvedByOT: res.ResolvedByOT,
		OperationID:  res.Operation.ID,
		UserID:       res.Operation.UserID,
		Transformed:  res.Operation.Transformed,
		Timestamp:    res.Operation.Timestamp,
	}, "")
	return res
}

// withOwner runs fn under the room lock if the client's connection owns its
// user's session in roomID.
func (h *Hub) withOwner(c *Client, roomID string, fn func(r *room.Room, userID string) error) error {
	if c.Room() != roomID {
		return fmt.Errorf("%w: %s", model.ErrUnknownRoom, roomID)
	}
	userID := c.Identity.UserID
	var err error
	found := h.Rooms.Do(roomID, false, func(r *room.Room) {
		if !r.Owns(userID, c.ID()) {
			err = fmt.Errorf("%w: %s in %s", model.ErrUnknownUser, userID, roomID)
			return
		}
		err = fn(r, userID)
	})
	if !found {
		return fmt.Errorf("%w: %s", model.ErrUnknownRoom, roomID)
	}
	return err
}

func (h *Hub) flushCursor(roomID, userID, connID string) {
	h.Rooms.Do(roomID, false, func(r *room.Room) {
		if !r.Owns(userID, connID) {
			return
		}
		p, _ := r.Presence.Get(userID)
		r.Broadcast(protocol.CursorEvent{
			Type:      protocol.CursorMovedType,
			Room:      roomID,
			UserID:    p.UserID,
			Username:  p.Username,
			X:         p.Cursor.X,
			Y:         p.Cursor.Y,
			Timestamp: h.now(),
		}, connID)
	})
}

func (h *Hub) flushSelection(roomID, userID, connID string) {
	h.Rooms.Do(roomID, false, func(r *room.Room) {
		if !r.Owns(userID, connID) {
			return
		}
		p, _ := r.Presence.Get(userID)
		r.Broadcast(protocol.SelectionEvent{
			Type:       protocol.SelectionChangedType,
			Room:       roomID,
			UserID:     p.UserID,
			Username:   p.Username,
			ElementIDs: p.Selection,
			Timestamp:  h.now(),
		}, connID)
	})
}

func (h *Hub) expireTyping(roomID, userID string, gen uint64) {
	h.Rooms.Do(roomID, false, func(r *room.Room) {
		if !r.Presence.ExpireTyping(userID, gen) {
			return
		}
		p, _ := r.Presence.Get(userID)
		r.Broadcast(typingEvent(roomID, p, h.now()), "")
	})
}

func typingEvent(roomID string, p model.Presence, now time.Time) protocol.TypingEvent {
	return protocol.TypingEvent{
		Type:      protocol.TypingChangedType,
		Room:      roomID,
		UserID:    p.UserID,
		Username:  p.Username,
		IsTyping:  p.IsTyping,
		Timestamp: now,
	}
}
