package oplog

import (
	"fmt"
	"testing"
	"time"

	"collabcore/internal/collab/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(id, element string, ts time.Time) model.Operation {
	return model.Operation{ID: id, ElementID: element, UserID: "u", Kind: model.OpMove, Timestamp: ts}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	log := New(3)
	base := time.Unix(100, 0)

	for i := 0; i < 5; i++ {
		evicted := log.Append(op(fmt.Sprintf("op%d", i), "S1", base.Add(time.Duration(i)*time.Second)))
		assert.Equal(t, i >= 3, evicted, "append %d", i)
	}

	all := log.All(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "op2", all[0].ID)
	assert.Equal(t, "op3", all[1].ID)
	assert.Equal(t, "op4", all[2].ID)
	assert.Equal(t, 3, log.Len())
	assert.Equal(t, 5, log.Total())
}

func TestEvictionIgnoresTransformedFlag(t *testing.T) {
	log := New(2)
	base := time.Unix(100, 0)
	log.Append(op("a", "S1", base))
	require.True(t, log.MarkTransformed("a"))
	log.Append(op("b", "S1", base))
	log.Append(op("c", "S1", base))

	all := log.All(0, 0)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "c", all[1].ID)
}

func TestRecentFiltersByElementAndWindow(t *testing.T) {
	log := New(10)
	base := time.Unix(100, 0)
	log.Append(op("old", "S1", base.Add(-2*time.Second)))
	log.Append(op("near", "S1", base.Add(-500*time.Millisecond)))
	log.Append(op("other", "S2", base))
	log.Append(op("edge", "S1", base.Add(time.Second)))

	got := log.Recent("S1", base, time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "edge", got[1].ID)
}

func TestMarkTransformedReplacesCopy(t *testing.T) {
	log := New(4)
	log.Append(op("a", "S1", time.Unix(1, 0)))

	before := log.All(0, 0)
	require.True(t, log.MarkTransformed("a"))
	assert.False(t, before[0].Transformed, "previously returned values are not mutated")
	assert.True(t, log.All(0, 0)[0].Transformed)
	assert.False(t, log.MarkTransformed("missing"))
}

func TestFindSeesLatestFlag(t *testing.T) {
	log := New(2)
	log.Append(op("a", "S1", time.Unix(1, 0)))
	log.MarkTransformed("a")

	got, ok := log.Find("a")
	require.True(t, ok)
	assert.True(t, got.Transformed)

	log.Append(op("b", "S1", time.Unix(2, 0)))
	log.Append(op("c", "S1", time.Unix(3, 0)))
	_, ok = log.Find("a")
	assert.False(t, ok, "evicted records are gone")
}

func TestAllPaginates(t *testing.T) {
	log := New(10)
	for i := 0; i < 6; i++ {
		log.Append(op(fmt.Sprintf("op%d", i), "S1", time.Unix(int64(i), 0)))
	}

	page := log.All(2, 3)
	require.Len(t, page, 2)
	assert.Equal(t, "op3", page[0].ID)
	assert.Equal(t, "op4", page[1].ID)

	assert.Empty(t, log.All(5, 10))
	assert.Len(t, log.All(0, -1), 6)
}

func TestNewDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
}
