// Package relay mirrors room broadcasts onto Redis pub/sub channels, one
// channel per room, for observers outside this process.
package relay

import (
	"context"
	"sync"

	"collabcore/pkg/logger"

	"github.com/redis/go-redis/v9"
)

type message struct {
	channel string
	payload []byte
}

// RedisPublisher queues messages and publishes them from a single goroutine,
// so per-room order is kept. Publish never blocks a room: when the queue is
// full the message is dropped with a warning.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	queue  chan message

	mu      sync.Mutex
	dropped int
}

func NewRedisPublisher(client redis.UniversalClient, prefix string, buffer int) *RedisPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &RedisPublisher{client: client, prefix: prefix, queue: make(chan message, buffer)}
}

// Channel returns the pub/sub channel of a room.
func (p *RedisPublisher) Channel(roomID string) string {
	return p.prefix + roomID
}

func (p *RedisPublisher) Publish(roomID string, msg []byte) {
	select {
	case p.queue <- message{channel: p.Channel(roomID), payload: msg}:
	default:
		p.mu.Lock()
		p.dropped++
		n := p.dropped
		p.mu.Unlock()
		if n%100 == 1 {
			logger.Sugar.Warnf("Relay queue full, dropped %d messages so far", n)
		}
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (p *RedisPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Run publishes queued messages until ctx ends.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			if err := p.client.Publish(ctx, m.channel, m.payload).Err(); err != nil {
				logger.Sugar.Errorf("Error publishing to Redis channel %s: %v", m.channel, err)
			}
		}
	}
}

// Connect builds a client for addr and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, err
	}
	logger.Sugar.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}
