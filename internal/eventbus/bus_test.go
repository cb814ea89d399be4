package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"trustchecker.io/trustchecker/internal/dlq"
	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
	"trustchecker.io/trustchecker/internal/pkg/logger"
	"trustchecker.io/trustchecker/internal/pkg/worker"
	"trustchecker.io/trustchecker/internal/schema"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

// testConfig keeps delivery fast enough for unit tests.
func testConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryBackoff:      []time.Duration{time.Millisecond},
		BatchSize:         10,
		BlockTimeout:      20 * time.Millisecond,
		MaxStreamLength:   1000,
		ValidateOnPublish: true,
	}
}

func newTestBus(t *testing.T, cfg Config) (*Bus, *dlq.Queue) {
	t.Helper()

	pools, err := worker.NewPools(worker.Config{GeneralSize: 8, PollerSize: 8})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	queue := dlq.NewQueue(dlq.NewMemoryStore(100))
	bus := New(NewMemoryBackend(1000), schema.NewRegistry(), queue, pools.Pollers, cfg)
	t.Cleanup(bus.Stop)
	return bus, queue
}

func scanCreatedPayload() map[string]any {
	return map[string]any{
		"productId":  "prod-1",
		"location":   "Berlin",
		"deviceInfo": "ios/17",
	}
}

func TestBus_PublishValid(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	env, err := bus.Publish(context.Background(), "scan.created", scanCreatedPayload(), Context{OrgID: "org-1"})
	require.NoError(t, err)

	require.Contains(t, env.ID, "evt-")
	require.Equal(t, "scan.created", env.Type)
	require.Equal(t, 1, env.Version)
	require.Equal(t, "org-1", env.Context.OrgID)
	require.Equal(t, "api", env.Context.Source)
	require.NotZero(t, env.PublishedAt)

	require.Equal(t, int64(1), bus.GetStats().Published)
}

func TestBus_PublishInvalidRejected(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	received := make(chan *Envelope, 1)
	err := bus.Subscribe(context.Background(), "scan.created", "grp", func(ctx context.Context, env *Envelope) error {
		received <- env
		return nil
	})
	require.NoError(t, err)

	_, err = bus.Publish(context.Background(), "scan.created", map[string]any{"productId": "p"}, Context{})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.CodeSchemaValidation))

	// Invalid events never reach subscribers.
	select {
	case env := <-received:
		t.Fatalf("subscriber received rejected event %s", env.ID)
	case <-time.After(100 * time.Millisecond):
	}
	require.Equal(t, int64(0), bus.GetStats().Published)
}

func TestBus_PublishUnknownTypeRejected(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	_, err := bus.Publish(context.Background(), "no.such.event", map[string]any{}, Context{})
	require.True(t, apperrors.HasCode(err, apperrors.CodeSchemaValidation))
}

func TestBus_DeliverySuccess(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	received := make(chan *Envelope, 1)
	require.NoError(t, bus.Subscribe(context.Background(), "scan.created", "grp", func(ctx context.Context, env *Envelope) error {
		received <- env
		return nil
	}))

	published, err := bus.Publish(context.Background(), "scan.created", scanCreatedPayload(), Context{TraceID: "tr-1"})
	require.NoError(t, err)

	select {
	case env := <-received:
		require.Equal(t, published.ID, env.ID)
		require.Equal(t, "tr-1", env.Context.TraceID)
		require.Equal(t, "prod-1", env.Data["productId"])
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	require.Eventually(t, func() bool {
		return bus.GetStats().Consumed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBus_FanOutAcrossGroups(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	groupA := make(chan string, 1)
	groupB := make(chan string, 1)
	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx, "scan.created", "group-a", func(ctx context.Context, env *Envelope) error {
		groupA <- env.ID
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "scan.created", "group-b", func(ctx context.Context, env *Envelope) error {
		groupB <- env.ID
		return nil
	}))

	published, err := bus.Publish(ctx, "scan.created", scanCreatedPayload(), Context{})
	require.NoError(t, err)

	for name, ch := range map[string]chan string{"group-a": groupA, "group-b": groupB} {
		select {
		case id := <-ch:
			require.Equal(t, published.ID, id, "group %s", name)
		case <-time.After(2 * time.Second):
			t.Fatalf("group %s did not receive the event", name)
		}
	}
}

func TestBus_OrderingWithinGroup(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	var mu sync.Mutex
	var order []string
	require.NoError(t, bus.Subscribe(context.Background(), "scan.created", "grp", func(ctx context.Context, env *Envelope) error {
		mu.Lock()
		order = append(order, env.ID)
		mu.Unlock()
		return nil
	}))

	var want []string
	for i := 0; i < 5; i++ {
		env, err := bus.Publish(context.Background(), "scan.created", scanCreatedPayload(), Context{})
		require.NoError(t, err)
		want = append(want, env.ID)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, order)
}

func TestBus_RetryThenSuccess(t *testing.T) {
	t.Parallel()
	bus, queue := newTestBus(t, testConfig())

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, bus.Subscribe(context.Background(), "scan.created", "grp", func(ctx context.Context, env *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	_, err := bus.Publish(context.Background(), "scan.created", scanCreatedPayload(), Context{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.GetStats().Consumed == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()

	stats := bus.GetStats()
	require.Equal(t, int64(0), stats.Failed)
	require.Equal(t, int64(0), stats.DLQ)
	require.Empty(t, queue.Depth(context.Background()))
}

func TestBus_ExhaustedRetriesRouteToDLQ(t *testing.T) {
	t.Parallel()
	bus, queue := newTestBus(t, testConfig())

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, bus.Subscribe(context.Background(), "scan.created", "poisoned", func(ctx context.Context, env *Envelope) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("permanent")
	}))

	_, err := bus.Publish(context.Background(), "scan.created", scanCreatedPayload(), Context{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.GetStats().DLQ == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()

	entries, err := queue.Inspect(context.Background(), "poisoned", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 3, entries[0].Attempts)
	require.Equal(t, "scan.created", entries[0].OriginalQueue)

	// Force-ack after DLQ: the poison message is never redelivered.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestBus_SubscribeIdempotent(t *testing.T) {
	t.Parallel()
	bus, _ := newTestBus(t, testConfig())

	var mu sync.Mutex
	deliveries := 0
	handler := func(ctx context.Context, env *Envelope) error {
		mu.Lock()
		deliveries++
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx, "scan.created", "grp", handler))
	require.NoError(t, bus.Subscribe(ctx, "scan.created", "grp", handler))

	_, err := bus.Publish(ctx, "scan.created", scanCreatedPayload(), Context{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, deliveries)
	mu.Unlock()
}

func TestBus_StopTerminatesPollers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pools, err := worker.NewPools(worker.Config{GeneralSize: 4, PollerSize: 4})
	require.NoError(t, err)

	queue := dlq.NewQueue(dlq.NewMemoryStore(10))
	bus := New(NewMemoryBackend(100), schema.NewRegistry(), queue, pools.Pollers, testConfig())

	require.NoError(t, bus.Subscribe(context.Background(), "scan.created", "grp", func(ctx context.Context, env *Envelope) error {
		return nil
	}))

	// Let the poller enter its blocking read at least once.
	time.Sleep(50 * time.Millisecond)

	bus.Stop()
	pools.Shutdown()
}
