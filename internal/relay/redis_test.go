package relay

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelName(t *testing.T) {
	p := NewRedisPublisher(nil, "collab:room:", 4)
	assert.Equal(t, "collab:room:d1", p.Channel("d1"))
}

func TestPublishQueuesInOrderAndDropsWhenFull(t *testing.T) {
	p := NewRedisPublisher(nil, "r:", 2)
	p.Publish("d1", []byte("a"))
	p.Publish("d1", []byte("b"))
	p.Publish("d1", []byte("c"))

	assert.Equal(t, 1, p.Dropped())
	first := <-p.queue
	second := <-p.queue
	assert.Equal(t, "r:d1", first.channel)
	assert.Equal(t, "a", string(first.payload))
	assert.Equal(t, "b", string(second.payload))
}

func TestRunReportsPublishErrors(t *testing.T) {
	// Nothing listens on this port, so every publish fails fast.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	p := NewRedisPublisher(rdb, "r:", 4)
	p.Publish("d1", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "Run did not stop after cancel")
	}
}
