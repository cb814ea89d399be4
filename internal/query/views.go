package query

import (
	"sort"
	"time"
)

// ViewKey identifies a registered materialized view.
type ViewKey string

// Builtin view keys for the platform's hot query patterns.
const (
	ViewDashboardStats   ViewKey = "DASHBOARD_STATS"
	ViewScanVerification ViewKey = "SCAN_VERIFICATION"
	ViewSCMTimeline      ViewKey = "SCM_TIMELINE"
	ViewFraudOverview    ViewKey = "FRAUD_OVERVIEW"
)

// Definition describes one materialized view: where it caches, how long
// entries live, and which domain events invalidate it.
type Definition struct {
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	CacheKeyPattern string        `json:"cacheKeyPattern"`
	TTL             time.Duration `json:"-"`
	InvalidateOn    []string      `json:"invalidateOn"`
}

// InvalidationEvents returns the deduplicated set of event types that
// invalidate at least one builtin view, in stable order. The composition
// root subscribes these on the bus.
func InvalidationEvents() []string {
	seen := make(map[string]struct{})
	var events []string
	for _, def := range builtinViews() {
		for _, event := range def.InvalidateOn {
			if _, dup := seen[event]; dup {
				continue
			}
			seen[event] = struct{}{}
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}

// builtinViews are the four pre-aggregated read models.
func builtinViews() map[ViewKey]Definition {
	return map[ViewKey]Definition{
		ViewDashboardStats: {
			Name:            "dashboard_stats",
			Description:     "Pre-aggregated counts, trends, and KPIs for dashboard",
			CacheKeyPattern: "qstore:dashboard:{orgId}",
			TTL:             60 * time.Second,
			InvalidateOn: []string{
				"scan.created", "scan.verified", "scan.fraud_detected",
				"fraud.alert.created", "fraud.alert.resolved",
			},
		},
		ViewScanVerification: {
			Name:            "scan_verification",
			Description:     "Product + QR + trust score joined for instant verification",
			CacheKeyPattern: "qstore:scan:{productId}",
			TTL:             30 * time.Second,
			InvalidateOn:    []string{"scan.created", "scan.verified"},
		},
		ViewSCMTimeline: {
			Name:            "scm_timeline",
			Description:     "Shipment + checkpoints + partner denormalized timeline",
			CacheKeyPattern: "qstore:scm_timeline:{shipmentId}",
			TTL:             120 * time.Second,
			InvalidateOn:    []string{"shipment.created", "shipment.checkpoint", "shipment.delivered"},
		},
		ViewFraudOverview: {
			Name:            "fraud_overview",
			Description:     "Alerts + severity distribution + resolution rate",
			CacheKeyPattern: "qstore:fraud_overview:{orgId}",
			TTL:             90 * time.Second,
			InvalidateOn:    []string{"fraud.alert.created", "fraud.alert.resolved"},
		},
	}
}
