package presence

import (
	"sync"
	"testing"
	"time"

	"collabcore/internal/collab/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresence(id string) model.Presence {
	return model.NewPresence(model.Identity{UserID: id, Username: id + "-name"}, time.Now())
}

func TestUpsertGetRemove(t *testing.T) {
	reg := NewRegistry(time.Second)
	reg.Upsert(newPresence("bob"))
	reg.Upsert(newPresence("alice"))

	all := reg.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].UserID)
	assert.Equal(t, model.StatusOnline, all[0].Status)
	assert.Equal(t, model.Cursor{}, all[0].Cursor)
	assert.Empty(t, all[0].Selection)

	reg.Upsert(newPresence("alice"))
	assert.Equal(t, 2, reg.Len(), "one presence per user")

	removed, ok := reg.Remove("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", removed.UserID)
	_, ok = reg.Get("alice")
	assert.False(t, ok)
	_, ok = reg.Remove("alice")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	reg := NewRegistry(time.Second)
	p := newPresence("alice")
	p.Selection = []string{"S1"}
	reg.Upsert(p)

	got, _ := reg.Get("alice")
	got.Selection[0] = "changed"
	again, _ := reg.Get("alice")
	assert.Equal(t, []string{"S1"}, again.Selection)
}

func TestLockHolderSkipsOffline(t *testing.T) {
	reg := NewRegistry(time.Second)
	reg.Upsert(newPresence("alice"))
	reg.Update("alice", func(p *model.Presence) { p.ActiveElement = "E7" })

	holder, ok := reg.LockHolder("E7")
	require.True(t, ok)
	assert.Equal(t, "alice", holder)

	reg.Update("alice", func(p *model.Presence) { p.Status = model.StatusOffline })
	_, ok = reg.LockHolder("E7")
	assert.False(t, ok)
}

func TestTypingAutoClears(t *testing.T) {
	var mu sync.Mutex
	reg := NewRegistry(30 * time.Millisecond)
	reg.Upsert(newPresence("alice"))

	expired := make(chan bool, 1)
	onIdle := func(gen uint64) {
		mu.Lock()
		defer mu.Unlock()
		expired <- reg.ExpireTyping("alice", gen)
	}

	mu.Lock()
	assert.True(t, reg.SetTyping("alice", true, onIdle))
	mu.Unlock()

	select {
	case ok := <-expired:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("typing flag never expired")
	}
	mu.Lock()
	p, _ := reg.Get("alice")
	mu.Unlock()
	assert.False(t, p.IsTyping)
}

func TestTypingResetInvalidatesOldTimer(t *testing.T) {
	reg := NewRegistry(time.Hour)
	reg.Upsert(newPresence("alice"))

	var gens []uint64
	onIdle := func(gen uint64) {}
	reg.SetTyping("alice", true, onIdle)
	gens = append(gens, reg.typing["alice"].gen)
	assert.False(t, reg.SetTyping("alice", true, onIdle), "flag unchanged")
	gens = append(gens, reg.typing["alice"].gen)

	assert.False(t, reg.ExpireTyping("alice", gens[0]), "stale generation ignored")
	assert.True(t, reg.ExpireTyping("alice", gens[1]))
}

func TestClearTypingStopsTimer(t *testing.T) {
	reg := NewRegistry(time.Hour)
	reg.Upsert(newPresence("alice"))
	reg.SetTyping("alice", true, func(uint64) {})

	reg.ClearTyping("alice")
	p, _ := reg.Get("alice")
	assert.False(t, p.IsTyping)
	assert.Empty(t, reg.typing)
	assert.False(t, reg.SetTyping("ghost", true, func(uint64) {}))
}
