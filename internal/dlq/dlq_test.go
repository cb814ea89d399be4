package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

type failingStore struct{}

func (failingStore) Push(context.Context, string, *Entry) error { return errors.New("store down") }
func (failingStore) List(context.Context, string, int) ([]*Entry, error) {
	return nil, errors.New("store down")
}
func (failingStore) Update(context.Context, string, int, *Entry) error {
	return errors.New("store down")
}
func (failingStore) Len(context.Context, string) (int64, error) { return 0, errors.New("store down") }
func (failingStore) Groups(context.Context) ([]string, error)   { return nil, errors.New("store down") }
func (failingStore) Purge(context.Context, string) error        { return errors.New("store down") }

func TestQueue_PushAndInspect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	event := map[string]any{"type": "scan.created", "id": "evt-1"}
	id := q.Push(ctx, "notifications", event, errors.New("handler blew up"), Options{
		Attempts:      3,
		OriginalQueue: "scan.created",
	})
	require.NotEmpty(t, id)

	entries, err := q.Inspect(ctx, "notifications", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	require.Equal(t, id, entry.ID)
	require.Equal(t, "notifications", entry.ConsumerGroup)
	require.Equal(t, "handler blew up", entry.Error)
	require.Equal(t, 3, entry.Attempts)
	require.Equal(t, "scan.created", entry.OriginalQueue)
	require.False(t, entry.Replayed)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(entry.Event, &decoded))
	require.Equal(t, "evt-1", decoded["id"])
}

func TestQueue_PushNeverFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(failingStore{})

	id := q.Push(ctx, "grp", map[string]any{"k": "v"}, errors.New("boom"), Options{Attempts: 3})
	require.NotEmpty(t, id)

	// Entry must be reachable through the fallback store.
	entries, err := q.Inspect(ctx, "grp", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ID)
}

func TestQueue_MemoryCapEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(3))

	for i := 0; i < 5; i++ {
		q.Push(ctx, "grp", map[string]any{"n": i}, errors.New("x"), Options{})
	}

	depth := q.Depth(ctx)
	require.Equal(t, int64(3), depth["grp"])

	// Most recent first: the oldest two were evicted.
	entries, err := q.Inspect(ctx, "grp", 10)
	require.NoError(t, err)
	var first map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Event, &first))
	require.Equal(t, float64(4), first["n"])
}

func TestQueue_Replay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	id := q.Push(ctx, "grp", map[string]any{"id": "evt-1"}, errors.New("x"), Options{})

	var replayed []string
	handler := func(ctx context.Context, event json.RawMessage) error {
		var m map[string]any
		_ = json.Unmarshal(event, &m)
		replayed = append(replayed, m["id"].(string))
		return nil
	}

	result := q.Replay(ctx, "grp", id, handler)
	require.True(t, result.Success)
	require.Equal(t, []string{"evt-1"}, replayed)

	// The entry stays in place, flagged as replayed.
	entries, err := q.Inspect(ctx, "grp", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Replayed)
	require.NotNil(t, entries[0].ReplayedAt)
}

func TestQueue_ReplayNotFound(t *testing.T) {
	t.Parallel()
	q := NewQueue(NewMemoryStore(10))

	result := q.Replay(context.Background(), "grp", "dlq-missing", func(context.Context, json.RawMessage) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.False(t, result.Success)
	require.Equal(t, "entry not found", result.Error)
}

func TestQueue_ReplayHandlerFailureLeavesEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	id := q.Push(ctx, "grp", map[string]any{}, errors.New("x"), Options{})

	result := q.Replay(ctx, "grp", id, func(context.Context, json.RawMessage) error {
		return errors.New("still broken")
	})
	require.False(t, result.Success)
	require.Equal(t, "still broken", result.Error)

	entries, _ := q.Inspect(ctx, "grp", 10)
	require.False(t, entries[0].Replayed)
}

func TestQueue_ReplayAllSkipsReplayed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	first := q.Push(ctx, "grp", map[string]any{"id": "a"}, errors.New("x"), Options{})
	q.Push(ctx, "grp", map[string]any{"id": "b"}, errors.New("x"), Options{})
	q.Push(ctx, "grp", map[string]any{"id": "c"}, errors.New("x"), Options{})

	ok := func(context.Context, json.RawMessage) error { return nil }
	require.True(t, q.Replay(ctx, "grp", first, ok).Success)

	var count int
	summary := q.ReplayAll(ctx, "grp", func(context.Context, json.RawMessage) error {
		count++
		return nil
	})
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.Success)
	require.Equal(t, 0, summary.Failed)
	require.Equal(t, 2, count)
}

func TestQueue_ReplayAllCountsFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	for i := 0; i < 3; i++ {
		q.Push(ctx, "grp", map[string]any{"n": i}, errors.New("x"), Options{})
	}

	fails := 0
	summary := q.ReplayAll(ctx, "grp", func(context.Context, json.RawMessage) error {
		fails++
		if fails == 1 {
			return errors.New("nope")
		}
		return nil
	})
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.Success)
	require.Equal(t, 1, summary.Failed)
}

func TestQueue_DepthAndPurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	q.Push(ctx, "grp-a", map[string]any{}, errors.New("x"), Options{})
	q.Push(ctx, "grp-a", map[string]any{}, errors.New("x"), Options{})
	q.Push(ctx, "grp-b", map[string]any{}, errors.New("x"), Options{})

	depth := q.Depth(ctx)
	require.Equal(t, int64(2), depth["grp-a"])
	require.Equal(t, int64(1), depth["grp-b"])

	require.NoError(t, q.Purge(ctx, "grp-a"))
	depth = q.Depth(ctx)
	require.NotContains(t, depth, "grp-a")
	require.Equal(t, int64(1), depth["grp-b"])
}

func TestQueue_GetStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(10))

	for i := 0; i < 4; i++ {
		q.Push(ctx, fmt.Sprintf("grp-%d", i%2), map[string]any{}, errors.New("x"), Options{})
	}

	stats := q.GetStats()
	require.Equal(t, int64(4), stats.Total)
	require.Equal(t, int64(2), stats.ByGroup["grp-0"])
	require.Equal(t, int64(2), stats.ByGroup["grp-1"])
}
