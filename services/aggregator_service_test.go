package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
)

func TestReduce(t *testing.T) {
	docs := []store.Document{
		{Key: "u1", Fields: map[string]interface{}{"side": "A"}},
		{Key: "u2", Fields: map[string]interface{}{"side": "B"}},
		{Key: "u3", Fields: map[string]interface{}{"side": "A"}},
		// Запись без валидной стороны входит в Total, но не в счётчики сторон.
		{Key: "u4", Fields: map[string]interface{}{"side": "?"}},
	}

	counts := Reduce(docs)
	assert.Equal(t, models.AggregateCounts{Total: 4, ACount: 2, BCount: 1}, counts)

	assert.Equal(t, models.AggregateCounts{}, Reduce(nil))
}

func TestAggregatorStreamFollowsChanges(t *testing.T) {
	memory := store.NewMemoryStore()
	aggregator := NewAggregatorService(memory, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collection := AttendeesCollection("mex-jpn-2025")
	sub, err := aggregator.Subscribe(ctx, "mex-jpn-2025")
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Equal(t, models.AggregateCounts{}, receiveCounts(t, sub))

	require.NoError(t, memory.Put(ctx, collection, "u1", map[string]interface{}{"side": "A"}, true))
	assert.Equal(t, models.AggregateCounts{Total: 1, ACount: 1}, receiveCounts(t, sub))

	require.NoError(t, memory.Put(ctx, collection, "u2", map[string]interface{}{"side": "B"}, true))
	assert.Equal(t, models.AggregateCounts{Total: 2, ACount: 1, BCount: 1}, receiveCounts(t, sub))

	// Смена стороны тем же субъектом не меняет Total.
	require.NoError(t, memory.Put(ctx, collection, "u1", map[string]interface{}{"side": "B"}, true))
	assert.Equal(t, models.AggregateCounts{Total: 2, BCount: 2}, receiveCounts(t, sub))

	require.NoError(t, memory.Delete(ctx, collection, "u1"))
	assert.Equal(t, models.AggregateCounts{Total: 1, BCount: 1}, receiveCounts(t, sub))
}

func TestAggregatorSnapshotOrderIndependent(t *testing.T) {
	// Полный пересчёт: итог зависит только от множества записей, не от
	// порядка их появления.
	type write struct {
		key  string
		side string
	}
	writes := []write{{"u1", "A"}, {"u2", "B"}, {"u3", "A"}}
	permutations := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}}

	want := models.AggregateCounts{Total: 3, ACount: 2, BCount: 1}
	for i, perm := range permutations {
		t.Run(fmt.Sprintf("order_%d", i), func(t *testing.T) {
			memory := store.NewMemoryStore()
			aggregator := NewAggregatorService(memory, discardLogger())
			ctx := context.Background()
			collection := AttendeesCollection("mex-jpn-2025")

			for _, idx := range perm {
				w := writes[idx]
				require.NoError(t, memory.Put(ctx, collection, w.key,
					map[string]interface{}{"side": w.side}, true))
			}

			counts, err := aggregator.Snapshot(ctx, "mex-jpn-2025")
			require.NoError(t, err)
			assert.Equal(t, want, counts)
		})
	}
}

func TestAggregatorSnapshotIsolatedPerEvent(t *testing.T) {
	memory := store.NewMemoryStore()
	aggregator := NewAggregatorService(memory, discardLogger())
	ctx := context.Background()

	require.NoError(t, memory.Put(ctx, AttendeesCollection("mex-jpn-2025"), "u1",
		map[string]interface{}{"side": "A"}, true))

	counts, err := aggregator.Snapshot(ctx, "canelo-crawford-2025")
	require.NoError(t, err)
	assert.Equal(t, models.AggregateCounts{}, counts)
}

func TestAggregatorSubscribeStopsOnContextCancel(t *testing.T) {
	memory := store.NewMemoryStore()
	aggregator := NewAggregatorService(memory, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := aggregator.Subscribe(ctx, "mex-jpn-2025")
	require.NoError(t, err)
	receiveCounts(t, sub)

	cancel()

	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok, "stream must close after context cancel")
	case <-time.After(time.Second):
		t.Fatal("stream did not close after context cancel")
	}
}

func receiveCounts(t *testing.T, sub *CountsSubscription) models.AggregateCounts {
	t.Helper()
	select {
	case counts, ok := <-sub.Updates():
		require.True(t, ok, "counts stream closed unexpectedly")
		return counts
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for counts update")
		return models.AggregateCounts{}
	}
}
