// Package query implements the read side: materialized views cached with
// per-view TTLs and invalidated by domain events. Views are eventually
// consistent; staleness is bounded by the larger of the view TTL and the
// event invalidation latency. The store never blocks writers, it simply
// rebuilds on the next read.
package query

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
)

// Result is one view read: the payload plus whether it was served from
// cache. Cache hits decode to generic JSON values; fresh builds carry the
// builder's typed output.
type Result struct {
	Data      any    `json:"data"`
	FromCache bool   `json:"fromCache"`
	View      string `json:"view"`
}

// Stats holds store counters for diagnostics.
type Stats struct {
	Hits            int64    `json:"hits"`
	Misses          int64    `json:"misses"`
	Rebuilds        int64    `json:"rebuilds"`
	Invalidations   int64    `json:"invalidations"`
	HitRate         int      `json:"hitRate"`
	Views           []string `json:"views"`
	MemoryCacheSize int      `json:"memoryCacheSize"`
}

// placeholderPattern matches unresolved {param} segments in a cache key.
var placeholderPattern = regexp.MustCompile(`\{[^}]+\}`)

// Store serves materialized views cache-first. Concurrent cold reads of
// the same key are collapsed into a single rebuild.
type Store struct {
	cache    Cache
	builders *Builders
	views    map[ViewKey]Definition
	bindings map[string][]ViewKey
	group    singleflight.Group

	mu    sync.Mutex
	stats struct {
		hits          int64
		misses        int64
		rebuilds      int64
		invalidations int64
	}
}

// NewStore creates a query store with the builtin views registered.
func NewStore(cache Cache, builders *Builders) *Store {
	s := &Store{
		cache:    cache,
		builders: builders,
		views:    builtinViews(),
		bindings: make(map[string][]ViewKey),
	}
	keys := make([]ViewKey, 0, len(s.views))
	for key := range s.views {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		for _, event := range s.views[key].InvalidateOn {
			s.bindings[event] = append(s.bindings[event], key)
		}
	}
	return s
}

// Get serves a view cache-first, rebuilding and re-caching on a miss.
func (s *Store) Get(ctx context.Context, viewKey ViewKey, params map[string]string) (Result, error) {
	def, ok := s.views[viewKey]
	if !ok {
		return Result{}, apperrors.Newf(apperrors.CodeUnknownView, "unknown view: %s", viewKey)
	}

	cacheKey := buildCacheKey(def.CacheKeyPattern, params)

	if raw, hit := s.cache.Get(ctx, cacheKey); hit {
		var data any
		if err := json.Unmarshal(raw, &data); err == nil {
			s.mu.Lock()
			s.stats.hits++
			s.mu.Unlock()
			return Result{Data: data, FromCache: true, View: def.Name}, nil
		}
		// Corrupt cache entry: treat as a miss and rebuild over it.
		s.cache.Del(ctx, cacheKey)
	}

	s.mu.Lock()
	s.stats.misses++
	s.mu.Unlock()

	data, _, _ := s.group.Do(cacheKey, func() (any, error) {
		built := s.build(ctx, viewKey, params)
		if raw, err := json.Marshal(built); err == nil {
			s.cache.Set(ctx, cacheKey, raw, def.TTL)
		}
		s.mu.Lock()
		s.stats.rebuilds++
		s.mu.Unlock()
		return built, nil
	})

	return Result{Data: data, FromCache: false, View: def.Name}, nil
}

// build dispatches to the view's aggregation builder.
func (s *Store) build(ctx context.Context, viewKey ViewKey, params map[string]string) any {
	switch viewKey {
	case ViewDashboardStats:
		return s.builders.DashboardStats(ctx, params["orgId"])
	case ViewScanVerification:
		return s.builders.ScanVerification(ctx, params["productId"])
	case ViewSCMTimeline:
		return s.builders.SCMTimeline(ctx, params["shipmentId"])
	case ViewFraudOverview:
		return s.builders.FraudOverview(ctx, params["orgId"])
	default:
		return nil
	}
}

// GetDashboardStats serves the dashboard view for an org.
func (s *Store) GetDashboardStats(ctx context.Context, orgID string) (Result, error) {
	return s.Get(ctx, ViewDashboardStats, map[string]string{"orgId": orgID})
}

// GetScanVerification serves the scan verification view for a product.
func (s *Store) GetScanVerification(ctx context.Context, productID string) (Result, error) {
	return s.Get(ctx, ViewScanVerification, map[string]string{"productId": productID})
}

// GetSCMTimeline serves the shipment timeline view.
func (s *Store) GetSCMTimeline(ctx context.Context, shipmentID string) (Result, error) {
	return s.Get(ctx, ViewSCMTimeline, map[string]string{"shipmentId": shipmentID})
}

// GetFraudOverview serves the fraud overview view for an org.
func (s *Store) GetFraudOverview(ctx context.Context, orgID string) (Result, error) {
	return s.Get(ctx, ViewFraudOverview, map[string]string{"orgId": orgID})
}

// OnEvent invalidates the views bound to a domain event. Org-scoped
// events invalidate only their tenant's key; unscoped events fall back to
// a prefix wipe of every cached instance of the view.
func (s *Store) OnEvent(ctx context.Context, eventType string, eventData map[string]any) {
	affected := s.bindings[eventType]
	if len(affected) == 0 {
		return
	}

	s.mu.Lock()
	s.stats.invalidations++
	s.mu.Unlock()

	orgID := extractOrgID(eventData)
	for _, viewKey := range affected {
		def := s.views[viewKey]
		if orgID != "" {
			params := stringParams(eventData)
			params["orgId"] = orgID
			s.cache.Del(ctx, buildCacheKey(def.CacheKeyPattern, params))
		} else {
			s.cache.DelPrefix(ctx, keyPrefix(def.CacheKeyPattern))
		}
	}
}

// GetStats returns store counters for diagnostics.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	hits, misses := s.stats.hits, s.stats.misses
	rebuilds, invalidations := s.stats.rebuilds, s.stats.invalidations
	s.mu.Unlock()

	views := make([]string, 0, len(s.views))
	for key := range s.views {
		views = append(views, string(key))
	}
	sort.Strings(views)

	stats := Stats{
		Hits:            hits,
		Misses:          misses,
		Rebuilds:        rebuilds,
		Invalidations:   invalidations,
		Views:           views,
		MemoryCacheSize: s.cache.Size(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = int(float64(hits) / float64(total) * 100)
	}
	return stats
}

// buildCacheKey substitutes params into a key pattern. Params present but
// empty resolve to "global"; placeholders with no param at all resolve to
// "all".
func buildCacheKey(pattern string, params map[string]string) string {
	key := pattern
	for name, value := range params {
		if value == "" {
			value = "global"
		}
		key = strings.ReplaceAll(key, "{"+name+"}", value)
	}
	return placeholderPattern.ReplaceAllString(key, "all")
}

// keyPrefix is the static part of a key pattern before the first
// placeholder, used for coarse invalidation.
func keyPrefix(pattern string) string {
	if i := strings.Index(pattern, "{"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// extractOrgID pulls the tenant scope out of event data, tolerating the
// field spellings used across publishers.
func extractOrgID(eventData map[string]any) string {
	for _, field := range []string{"orgId", "org_id"} {
		if v, ok := eventData[field].(string); ok && v != "" {
			return v
		}
	}
	if nested, ok := eventData["context"].(map[string]any); ok {
		if v, ok := nested["tenantId"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// stringParams keeps the string-valued fields of event data for key
// substitution.
func stringParams(eventData map[string]any) map[string]string {
	params := make(map[string]string)
	for k, v := range eventData {
		if s, ok := v.(string); ok {
			params[k] = s
		}
	}
	return params
}
