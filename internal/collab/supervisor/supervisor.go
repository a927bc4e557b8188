// Package supervisor runs the per (room, user) disconnect state machine:
//
//	Connected --channel close--> GracePeriod --timer--> Removed
//	GracePeriod --rejoin--> Connected
//
// Cleanup broadcasts happen when the channel closes, not when the grace
// period ends, so other clients update at once while the slot stays open.
package supervisor

import (
	"time"

	"collabcore/internal/collab/model"
	"collabcore/internal/collab/protocol"
	"collabcore/internal/collab/room"
	"collabcore/pkg/logger"
)

type Supervisor struct {
	rooms *room.Manager
	grace time.Duration
	now   func() time.Time
}

func New(rooms *room.Manager, grace time.Duration) *Supervisor {
	return &Supervisor{rooms: rooms, grace: grace, now: time.Now}
}

// Connect makes connID the owner of userID's session in r and reports
// whether this ended a grace period. The caller holds the room lock.
func (s *Supervisor) Connect(r *room.Room, userID, connID string) (rejoined bool) {
	sess, ok := r.Sessions[userID]
	if !ok {
		sess = &room.Session{UserID: userID}
		r.Sessions[userID] = sess
	}
	if sess.State == room.GracePeriod {
		if sess.Timer != nil {
			sess.Timer.Stop()
		}
		sess.Timer = nil
		sess.Gen++
		rejoined = true
	}
	sess.ConnID = connID
	sess.State = room.Connected
	return rejoined
}

// Disconnect handles the close of connID's channel. If the connection still
// owns the user's session, the user's cursor and lock are released and
// announced, and removal is deferred by the grace period.
func (s *Supervisor) Disconnect(roomID, userID, connID string) {
	s.rooms.Do(roomID, false, func(r *room.Room) {
		r.Members.Remove(connID)
		if !r.Owns(userID, connID) {
			r.ReleaseIfEmpty()
			return
		}

		now := s.now()
		var freed string
		r.Presence.ClearTyping(userID)
		r.Presence.Update(userID, func(p *model.Presence) {
			freed = p.ActiveElement
			p.Cursor = model.Cursor{}
			p.Selection = []string{}
			p.ActiveElement = ""
			p.Status = model.StatusOffline
			p.LastSeen = now
		})
		p, _ := r.Presence.Get(userID)

		r.Broadcast(protocol.NewUserEvent(protocol.CursorRemovedType, roomID, p, now), "")
		if freed != "" {
			r.Broadcast(protocol.NewElementLockEvent(protocol.ElementUnlockedType, roomID, p, freed, now), "")
		}
		r.Broadcast(protocol.NewUserEvent(protocol.UserLeftType, roomID, p, now), "")

		sess := r.Sessions[userID]
		sess.State = room.GracePeriod
		sess.ConnID = ""
		sess.Gen++
		gen := sess.Gen
		sess.Timer = time.AfterFunc(s.grace, func() { s.expire(roomID, userID, gen) })
		logger.Sugar.Infof("User %s disconnected from room %s, holding slot for %v", userID, roomID, s.grace)
	})
}

// Leave removes the user at once, without a grace period. The caller holds
// the room lock. It reports whether connID owned the session.
func (s *Supervisor) Leave(r *room.Room, userID, connID string) bool {
	r.Members.Remove(connID)
	if !r.Owns(userID, connID) {
		r.ReleaseIfEmpty()
		return false
	}

	now := s.now()
	p, _ := r.Presence.Remove(userID)
	if p.ActiveElement != "" {
		r.Broadcast(protocol.NewElementLockEvent(protocol.ElementUnlockedType, r.ID, p, p.ActiveElement, now), "")
	}
	r.Broadcast(protocol.NewUserEvent(protocol.UserLeftType, r.ID, p, now), "")
	s.end(r, userID)
	return true
}

// State returns the session state of userID in roomID; users without a
// session are reported as Removed.
func (s *Supervisor) State(roomID, userID string) room.SessionState {
	state := room.Removed
	s.rooms.Peek(roomID, func(r *room.Room) {
		if sess, ok := r.Sessions[userID]; ok {
			state = sess.State
		}
	})
	return state
}

func (s *Supervisor) expire(roomID, userID string, gen uint64) {
	s.rooms.Do(roomID, false, func(r *room.Room) {
		sess, ok := r.Sessions[userID]
		if !ok || sess.Gen != gen || sess.State != room.GracePeriod {
			return
		}
		r.Presence.Remove(userID)
		s.end(r, userID)
		logger.Sugar.Infof("Grace period over for user %s in room %s", userID, roomID)
	})
}

func (s *Supervisor) end(r *room.Room, userID string) {
	if sess, ok := r.Sessions[userID]; ok {
		if sess.Timer != nil {
			sess.Timer.Stop()
		}
		sess.State = room.Removed
		delete(r.Sessions, userID)
	}
	r.ReleaseIfEmpty()
}
