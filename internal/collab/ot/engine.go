// Package ot resolves concurrent whole-value mutations of the same element.
//
// Two operations on one element from different users are concurrent when
// their timestamps are at most the concurrency window apart. The later
// timestamp wins; on a tie the lexicographically greater user id wins. Losers
// are kept in the log with Transformed set, so history is never lost.
package ot

import (
	"encoding/json"
	"time"

	"collabcore/internal/collab/model"
	"collabcore/internal/collab/oplog"

	"github.com/google/uuid"
)

const DefaultWindow = time.Second

// Document is the per-room state the engine works on. Callers hold the room
// lock for the whole Apply call.
type Document struct {
	Log      *oplog.Log
	Elements map[string]model.ElementState
}

func NewDocument(capacity int) *Document {
	return &Document{
		Log:      oplog.New(capacity),
		Elements: make(map[string]model.ElementState),
	}
}

// Values returns the current value of every live element.
func (d *Document) Values() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(d.Elements))
	for id, st := range d.Elements {
		if !st.Deleted {
			out[id] = st.Value
		}
	}
	return out
}

type Result struct {
	Operation model.Operation
	State     model.ElementState
	// ResolvedByOT is true when the operation met at least one concurrent
	// operation from another user.
	ResolvedByOT bool
	// Superseded lists prior operations this one caused to be marked transformed.
	Superseded []string
}

type Engine struct {
	window  time.Duration
	maxSkew time.Duration
	now     func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxClockSkew bounds how far in the future a client timestamp may lie
// before it is replaced by the receipt time.
func WithMaxClockSkew(d time.Duration) Option {
	return func(e *Engine) { e.maxSkew = d }
}

func NewEngine(window time.Duration, opts ...Option) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	e := &Engine{window: window, maxSkew: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Window() time.Duration { return e.window }

// Apply records op in doc and returns the authoritative state of its element.
func (e *Engine) Apply(doc *Document, op model.Operation) Result {
	op = e.normalize(op)

	var priors []model.Operation
	for _, p := range doc.Log.Recent(op.ElementID, op.Timestamp, e.window) {
		if p.UserID != op.UserID {
			priors = append(priors, p)
		}
	}

	if len(priors) == 0 {
		doc.Log.Append(op)
		st := stateOf(op)
		doc.Elements[op.ElementID] = st
		return Result{Operation: op, State: st}
	}

	var superseded []string
	var standing []model.Operation
	for _, p := range priors {
		if Wins(op, p) {
			if !p.Transformed && doc.Log.MarkTransformed(p.ID) {
				superseded = append(superseded, p.ID)
			}
			continue
		}
		op.Transformed = true
		if !p.Transformed {
			standing = append(standing, p)
		}
	}
	doc.Log.Append(op)

	st := stateOf(op)
	if op.Transformed {
		st = settle(doc, op, priors, standing)
	}
	doc.Elements[op.ElementID] = st
	return Result{Operation: op, State: st, ResolvedByOT: true, Superseded: superseded}
}

// settle picks the authoritative state after op lost: the strongest of the
// priors still standing and the current state, unless the current state's
// operation has itself been marked transformed.
func settle(doc *Document, op model.Operation, priors, standing []model.Operation) model.ElementState {
	cur, hasCur := doc.Elements[op.ElementID]
	if hasCur && cur.OperationID != "" {
		if rec, ok := doc.Log.Find(cur.OperationID); ok && rec.Transformed {
			hasCur = false
		}
	}

	var best *model.Operation
	for i := range standing {
		if best == nil || Wins(standing[i], *best) {
			best = &standing[i]
		}
	}
	if hasCur && (best == nil || Wins(model.Operation{UserID: cur.UserID, Timestamp: cur.Timestamp}, *best)) {
		return cur
	}
	if best != nil {
		return stateOf(*best)
	}

	// Everything op lost to has been superseded in turn; fall back to the
	// strongest of them.
	for i := range priors {
		if !Wins(op, priors[i]) && (best == nil || Wins(priors[i], *best)) {
			best = &priors[i]
		}
	}
	return stateOf(*best)
}

// Wins reports whether a takes precedence over b.
func Wins(a, b model.Operation) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.UserID > b.UserID
}

func (e *Engine) normalize(op model.Operation) model.Operation {
	now := e.now()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Timestamp.IsZero() || op.Timestamp.Unix() <= 0 || op.Timestamp.After(now.Add(e.maxSkew)) {
		op.Timestamp = now
	}
	op.Transformed = false
	return op
}

func stateOf(op model.Operation) model.ElementState {
	return model.ElementState{
		ElementID:   op.ElementID,
		Value:       op.NewValue,
		Kind:        op.Kind,
		UserID:      op.UserID,
		OperationID: op.ID,
		Timestamp:   op.Timestamp,
		Deleted:     op.Kind == model.OpDelete,
	}
}
