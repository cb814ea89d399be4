package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
	"trustchecker.io/trustchecker/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

// newTestStore runs against the in-process cache and a nil read pool, so
// builders return zeroed aggregates.
func newTestStore() (*Store, *MemoryCache) {
	cache := NewMemoryCache()
	return NewStore(cache, NewBuilders(nil)), cache
}

func TestBuildCacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		params  map[string]string
		want    string
	}{
		{
			name:    "param substituted",
			pattern: "qstore:dashboard:{orgId}",
			params:  map[string]string{"orgId": "org-1"},
			want:    "qstore:dashboard:org-1",
		},
		{
			name:    "present but empty resolves to global",
			pattern: "qstore:dashboard:{orgId}",
			params:  map[string]string{"orgId": ""},
			want:    "qstore:dashboard:global",
		},
		{
			name:    "missing param resolves to all",
			pattern: "qstore:dashboard:{orgId}",
			params:  map[string]string{},
			want:    "qstore:dashboard:all",
		},
		{
			name:    "unrelated params ignored",
			pattern: "qstore:scan:{productId}",
			params:  map[string]string{"productId": "p-1", "orgId": "org-1"},
			want:    "qstore:scan:p-1",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, buildCacheKey(tc.pattern, tc.params))
		})
	}
}

func TestStore_GetUnknownView(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	_, err := s.Get(context.Background(), "NOPE", nil)
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnknownView))
}

func TestStore_MissThenHit(t *testing.T) {
	t.Parallel()
	s, cache := newTestStore()
	ctx := context.Background()

	first, err := s.GetDashboardStats(ctx, "org-1")
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, "dashboard_stats", first.View)
	require.NotNil(t, first.Data)

	_, cached := cache.Get(ctx, "qstore:dashboard:org-1")
	require.True(t, cached)

	second, err := s.GetDashboardStats(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, second.FromCache)

	stats := s.GetStats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Rebuilds)
	require.Equal(t, 50, stats.HitRate)
}

func TestStore_TenantsCachedSeparately(t *testing.T) {
	t.Parallel()
	s, cache := newTestStore()
	ctx := context.Background()

	_, err := s.GetDashboardStats(ctx, "org-a")
	require.NoError(t, err)
	_, err = s.GetDashboardStats(ctx, "org-b")
	require.NoError(t, err)

	require.Equal(t, 2, cache.Size())

	stats := s.GetStats()
	require.Equal(t, int64(0), stats.Hits)
	require.Equal(t, int64(2), stats.Misses)
}

func TestStore_CorruptEntryRebuilt(t *testing.T) {
	t.Parallel()
	s, cache := newTestStore()
	ctx := context.Background()

	cache.Set(ctx, "qstore:scan:p-1", []byte("{not json"), time.Minute)

	res, err := s.GetScanVerification(ctx, "p-1")
	require.NoError(t, err)
	require.False(t, res.FromCache)

	// The rebuild replaced the corrupt bytes with a valid payload.
	res, err = s.GetScanVerification(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, res.FromCache)
}

func TestStore_OrgScopedInvalidation(t *testing.T) {
	t.Parallel()
	s, cache := newTestStore()
	ctx := context.Background()

	_, err := s.GetDashboardStats(ctx, "org-a")
	require.NoError(t, err)
	_, err = s.GetDashboardStats(ctx, "org-b")
	require.NoError(t, err)

	s.OnEvent(ctx, "scan.created", map[string]any{"orgId": "org-a"})

	// Only the emitting tenant's entry is dropped.
	_, stillCached := cache.Get(ctx, "qstore:dashboard:org-b")
	require.True(t, stillCached)
	_, dropped := cache.Get(ctx, "qstore:dashboard:org-a")
	require.False(t, dropped)

	require.Equal(t, int64(1), s.GetStats().Invalidations)
}

func TestStore_UnscopedEventWipesPrefix(t *testing.T) {
	t.Parallel()
	s, cache := newTestStore()
	ctx := context.Background()

	_, err := s.GetFraudOverview(ctx, "org-a")
	require.NoError(t, err)
	_, err = s.GetFraudOverview(ctx, "org-b")
	require.NoError(t, err)
	_, err = s.GetSCMTimeline(ctx, "ship-1")
	require.NoError(t, err)

	s.OnEvent(ctx, "fraud.alert.resolved", map[string]any{"alertId": "a-1"})

	_, cachedA := cache.Get(ctx, "qstore:fraud_overview:org-a")
	require.False(t, cachedA)
	_, cachedB := cache.Get(ctx, "qstore:fraud_overview:org-b")
	require.False(t, cachedB)

	// Unrelated views are untouched.
	_, timeline := cache.Get(ctx, "qstore:scm_timeline:ship-1")
	require.True(t, timeline)
}

func TestStore_NestedTenantScopeHonored(t *testing.T) {
	t.Parallel()
	s, cache := newTestStore()
	ctx := context.Background()

	_, err := s.GetDashboardStats(ctx, "org-a")
	require.NoError(t, err)
	_, err = s.GetDashboardStats(ctx, "org-b")
	require.NoError(t, err)

	s.OnEvent(ctx, "scan.verified", map[string]any{
		"scanId":  "scan-1",
		"context": map[string]any{"tenantId": "org-a"},
	})

	_, cachedA := cache.Get(ctx, "qstore:dashboard:org-a")
	require.False(t, cachedA)
	_, cachedB := cache.Get(ctx, "qstore:dashboard:org-b")
	require.True(t, cachedB)
}

func TestStore_UnboundEventIgnored(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.OnEvent(context.Background(), "user.created", map[string]any{"orgId": "org-a"})
	require.Equal(t, int64(0), s.GetStats().Invalidations)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	t.Parallel()
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	_, ok := cache.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = cache.Get(ctx, "k")
	require.False(t, ok)
	require.Equal(t, 0, cache.Size())
}

func TestMemoryCache_DelPrefix(t *testing.T) {
	t.Parallel()
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Set(ctx, "qstore:dashboard:a", []byte("1"), time.Minute)
	cache.Set(ctx, "qstore:dashboard:b", []byte("2"), time.Minute)
	cache.Set(ctx, "qstore:scan:a", []byte("3"), time.Minute)

	cache.DelPrefix(ctx, "qstore:dashboard:")
	require.Equal(t, 1, cache.Size())
	_, ok := cache.Get(ctx, "qstore:scan:a")
	require.True(t, ok)
}

func TestInvalidationEvents(t *testing.T) {
	t.Parallel()

	events := InvalidationEvents()
	require.Contains(t, events, "scan.created")
	require.Contains(t, events, "fraud.alert.created")
	require.Contains(t, events, "shipment.delivered")

	// Deduplicated: scan.created invalidates two views but appears once.
	seen := make(map[string]int)
	for _, e := range events {
		seen[e]++
	}
	require.Equal(t, 1, seen["scan.created"])
}

func TestBuilders_NilPoolDegrades(t *testing.T) {
	t.Parallel()
	b := NewBuilders(nil)
	ctx := context.Background()

	dash := b.DashboardStats(ctx, "org-1")
	require.Zero(t, dash.TotalProducts)
	require.Zero(t, dash.TotalScans)
	require.Equal(t, "+0%", dash.ScanTrendLabel)
	require.False(t, dash.GeneratedAt.IsZero())

	scan := b.ScanVerification(ctx, "p-1")
	require.Nil(t, scan.Product)
	require.Empty(t, scan.RecentScans)

	timeline := b.SCMTimeline(ctx, "s-1")
	require.Nil(t, timeline.Shipment)
	require.Empty(t, timeline.Checkpoints)

	fraud := b.FraudOverview(ctx, "org-1")
	require.Zero(t, fraud.TotalAlerts)
	require.Empty(t, fraud.SeverityDistribution)
}
