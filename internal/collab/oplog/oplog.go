// Package oplog keeps a bounded, insertion-ordered history of operations for
// one room. A Log is not safe for concurrent use; the owning room's lock
// guards it.
package oplog

import (
	"time"

	"collabcore/internal/collab/model"
)

const DefaultCapacity = 1000

type Log struct {
	buf   []model.Operation
	start int
	size  int
	total int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]model.Operation, capacity)}
}

// Append records op, evicting the oldest entry when the log is full.
func (l *Log) Append(op model.Operation) (evicted bool) {
	l.total++
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = op
		l.size++
		return false
	}
	l.buf[l.start] = op
	l.start = (l.start + 1) % len(l.buf)
	return true
}

// Recent returns the operations on elementID whose timestamp lies within
// window of at, oldest first.
func (l *Log) Recent(elementID string, at time.Time, window time.Duration) []model.Operation {
	var out []model.Operation
	for i := 0; i < l.size; i++ {
		op := l.at(i)
		if op.ElementID != elementID {
			continue
		}
		d := op.Timestamp.Sub(at)
		if d < 0 {
			d = -d
		}
		if d <= window {
			out = append(out, op)
		}
	}
	return out
}

// MarkTransformed replaces the record with the given id by a copy flagged as
// transformed. It reports whether the record was found.
func (l *Log) MarkTransformed(id string) bool {
	for i := l.size - 1; i >= 0; i-- {
		idx := (l.start + i) % len(l.buf)
		if l.buf[idx].ID == id {
			op := l.buf[idx]
			op.Transformed = true
			l.buf[idx] = op
			return true
		}
	}
	return false
}

// Find returns the current record with the given id.
func (l *Log) Find(id string) (model.Operation, bool) {
	for i := l.size - 1; i >= 0; i-- {
		if op := l.at(i); op.ID == id {
			return op, true
		}
	}
	return model.Operation{}, false
}

// All returns up to limit operations, oldest first, skipping offset entries.
// A non-positive limit returns everything after offset.
func (l *Log) All(limit, offset int) []model.Operation {
	if offset < 0 {
		offset = 0
	}
	if offset >= l.size {
		return []model.Operation{}
	}
	n := l.size - offset
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Operation, n)
	for i := range out {
		out[i] = l.at(offset + i)
	}
	return out
}

func (l *Log) Len() int { return l.size }

// Total counts every operation ever appended, evicted ones included.
func (l *Log) Total() int { return l.total }

func (l *Log) Cap() int { return len(l.buf) }

func (l *Log) at(i int) model.Operation {
	return l.buf[(l.start+i)%len(l.buf)]
}
