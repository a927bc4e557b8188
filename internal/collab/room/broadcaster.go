package room

// Sink is one connection able to receive room messages.
type Sink interface {
	ID() string
	// Enqueue queues msg for delivery without blocking. It returns false
	// when the connection is closed or its buffer is full.
	Enqueue(msg []byte) bool
	Close()
}

// Broadcaster is the fan-out of one room and the only place that changes
// which connections are in it. Calls happen under the room lock, so messages
// reach every recipient's queue in submission order.
type Broadcaster struct {
	roomID string
	sinks  map[string]Sink
	mirror func(roomID string, msg []byte)
}

func newBroadcaster(roomID string, mirror func(string, []byte)) *Broadcaster {
	return &Broadcaster{roomID: roomID, sinks: make(map[string]Sink), mirror: mirror}
}

func (b *Broadcaster) Add(s Sink) {
	b.sinks[s.ID()] = s
}

func (b *Broadcaster) Remove(id string) bool {
	if _, ok := b.sinks[id]; !ok {
		return false
	}
	delete(b.sinks, id)
	return true
}

func (b *Broadcaster) Has(id string) bool {
	_, ok := b.sinks[id]
	return ok
}

func (b *Broadcaster) Len() int { return len(b.sinks) }

// Broadcast queues msg on every member except exclude. Members whose queue
// rejects the message are dropped from the room and closed; their own
// disconnect handling takes it from there. It returns the number of members
// that accepted the message.
func (b *Broadcaster) Broadcast(msg []byte, exclude string) int {
	delivered := 0
	for id, s := range b.sinks {
		if id == exclude {
			continue
		}
		if s.Enqueue(msg) {
			delivered++
			continue
		}
		delete(b.sinks, id)
		s.Close()
	}
	if b.mirror != nil {
		b.mirror(b.roomID, msg)
	}
	return delivered
}

// Send queues msg on a single member.
func (b *Broadcaster) Send(id string, msg []byte) bool {
	s, ok := b.sinks[id]
	if !ok {
		return false
	}
	return s.Enqueue(msg)
}
