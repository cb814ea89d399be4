package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

// DashboardStats is the pre-aggregated dashboard read model.
type DashboardStats struct {
	TotalProducts    int64     `json:"totalProducts"`
	TotalScans       int64     `json:"totalScans"`
	TotalFraudAlerts int64     `json:"totalFraudAlerts"`
	OpenFraudAlerts  int64     `json:"openFraudAlerts"`
	CriticalAlerts   int64     `json:"criticalAlerts"`
	TotalPartners    int64     `json:"totalPartners"`
	ScanTrend        int       `json:"scanTrend"`
	ScanTrendLabel   string    `json:"scanTrendLabel"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// ScanVerification joins a product with its trust score and recent scans.
type ScanVerification struct {
	Product     map[string]any   `json:"product"`
	RecentScans []map[string]any `json:"recentScans"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// SCMTimeline denormalizes a shipment with its checkpoints and partner.
type SCMTimeline struct {
	Shipment    map[string]any   `json:"shipment"`
	Checkpoints []map[string]any `json:"checkpoints"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// SeverityBucket is one row of a fraud severity distribution.
type SeverityBucket struct {
	Severity string `json:"severity"`
	Count    int64  `json:"count"`
}

// FraudOverview aggregates alert counts, severity spread, and resolution
// rate.
type FraudOverview struct {
	SeverityDistribution []SeverityBucket `json:"severityDistribution"`
	TotalAlerts          int64            `json:"totalAlerts"`
	ResolvedAlerts       int64            `json:"resolvedAlerts"`
	ResolutionRate       int              `json:"resolutionRate"`
	GeneratedAt          time.Time        `json:"generatedAt"`
}

// Builders runs the read-side aggregation queries behind each view. Every
// builder degrades to zeroed output instead of failing: a view read must
// never propagate a partial database outage to its caller. A nil pool
// (cache-only deployments, tests) yields the zeroed output immediately.
type Builders struct {
	pool *pgxpool.Pool
}

// NewBuilders creates view builders over the read database. pool may be
// nil.
func NewBuilders(pool *pgxpool.Pool) *Builders {
	return &Builders{pool: pool}
}

// countRow runs a single-value COUNT query, zero on any failure.
func (b *Builders) countRow(ctx context.Context, sql string, args ...any) int64 {
	if b.pool == nil {
		return 0
	}
	var count int64
	if err := b.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		logger.Warn("view builder count query failed", zap.String("sql", sql), zap.Error(err))
		return 0
	}
	return count
}

// rowsToMaps materializes query rows as column-keyed maps.
func rowsToMaps(rows pgx.Rows) []map[string]any {
	defer rows.Close()

	var out []map[string]any
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			continue
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	return out
}

// queryMaps runs a query returning rows as maps, empty on any failure.
func (b *Builders) queryMaps(ctx context.Context, sql string, args ...any) []map[string]any {
	if b.pool == nil {
		return nil
	}
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		logger.Warn("view builder query failed", zap.String("sql", sql), zap.Error(err))
		return nil
	}
	return rowsToMaps(rows)
}

// orgFilter builds an optional org_id predicate. An empty orgID matches
// all rows (the "global" view).
func orgFilter(orgID string) (clause string, args []any) {
	if orgID == "" {
		return "", nil
	}
	return " WHERE org_id = $1", []any{orgID}
}

// DashboardStats aggregates counts and the week-over-week scan trend.
func (b *Builders) DashboardStats(ctx context.Context, orgID string) DashboardStats {
	out := DashboardStats{GeneratedAt: time.Now().UTC()}

	where, args := orgFilter(orgID)
	out.TotalProducts = b.countRow(ctx, "SELECT COUNT(*) FROM products"+where, args...)
	out.TotalScans = b.countRow(ctx, "SELECT COUNT(*) FROM scan_events"+where, args...)
	out.TotalPartners = b.countRow(ctx, "SELECT COUNT(*) FROM partners"+where, args...)
	out.TotalFraudAlerts = b.countRow(ctx, "SELECT COUNT(*) FROM fraud_alerts"+where, args...)
	out.OpenFraudAlerts = b.countRow(ctx,
		"SELECT COUNT(*) FROM fraud_alerts"+andWhere(where, "status = 'open'"), args...)
	out.CriticalAlerts = b.countRow(ctx,
		"SELECT COUNT(*) FROM fraud_alerts"+andWhere(where, "severity = 'critical'"), args...)

	recent := b.countRow(ctx,
		"SELECT COUNT(*) FROM scan_events"+andWhere(where, "created_at > NOW() - INTERVAL '7 days'"), args...)
	previous := b.countRow(ctx,
		"SELECT COUNT(*) FROM scan_events"+andWhere(where,
			"created_at > NOW() - INTERVAL '14 days' AND created_at <= NOW() - INTERVAL '7 days'"), args...)

	if previous > 0 {
		out.ScanTrend = int(float64(recent-previous) / float64(previous) * 100)
	}
	if out.ScanTrend >= 0 {
		out.ScanTrendLabel = fmt.Sprintf("+%d%%", out.ScanTrend)
	} else {
		out.ScanTrendLabel = fmt.Sprintf("%d%%", out.ScanTrend)
	}
	return out
}

// andWhere appends a predicate to an optional WHERE clause.
func andWhere(where, predicate string) string {
	if where == "" {
		return " WHERE " + predicate
	}
	return where + " AND " + predicate
}

// ScanVerification joins the product with its trust score plus the last
// ten scans.
func (b *Builders) ScanVerification(ctx context.Context, productID string) ScanVerification {
	out := ScanVerification{RecentScans: []map[string]any{}, GeneratedAt: time.Now().UTC()}
	if b.pool == nil || productID == "" {
		return out
	}

	products := b.queryMaps(ctx,
		`SELECT p.*, ts.score AS trust_score, ts.level AS trust_level
		 FROM products p LEFT JOIN trust_scores ts ON p.id = ts.product_id
		 WHERE p.id = $1 LIMIT 1`, productID)
	if len(products) > 0 {
		out.Product = products[0]
	}

	scans := b.queryMaps(ctx,
		`SELECT * FROM scan_events WHERE product_id = $1 ORDER BY created_at DESC LIMIT 10`, productID)
	if scans != nil {
		out.RecentScans = scans
	}
	return out
}

// SCMTimeline joins the shipment with its partner and orders checkpoints
// chronologically.
func (b *Builders) SCMTimeline(ctx context.Context, shipmentID string) SCMTimeline {
	out := SCMTimeline{Checkpoints: []map[string]any{}, GeneratedAt: time.Now().UTC()}
	if b.pool == nil || shipmentID == "" {
		return out
	}

	shipments := b.queryMaps(ctx,
		`SELECT s.*, p.name AS partner_name, p.trust_rating AS partner_trust
		 FROM shipments s LEFT JOIN partners p ON s.partner_id = p.id
		 WHERE s.id = $1 LIMIT 1`, shipmentID)
	if len(shipments) > 0 {
		out.Shipment = shipments[0]
	}

	checkpoints := b.queryMaps(ctx,
		`SELECT * FROM shipment_checkpoints WHERE shipment_id = $1 ORDER BY timestamp ASC`, shipmentID)
	if checkpoints != nil {
		out.Checkpoints = checkpoints
	}
	return out
}

// FraudOverview aggregates severity distribution and resolution rate.
func (b *Builders) FraudOverview(ctx context.Context, orgID string) FraudOverview {
	out := FraudOverview{SeverityDistribution: []SeverityBucket{}, GeneratedAt: time.Now().UTC()}
	if b.pool == nil {
		return out
	}

	where, args := orgFilter(orgID)
	dist := b.queryMaps(ctx,
		"SELECT severity, COUNT(*) AS count FROM fraud_alerts"+where+" GROUP BY severity", args...)
	for _, row := range dist {
		bucket := SeverityBucket{}
		if s, ok := row["severity"].(string); ok {
			bucket.Severity = s
		}
		if n, ok := row["count"].(int64); ok {
			bucket.Count = n
		}
		out.SeverityDistribution = append(out.SeverityDistribution, bucket)
	}

	out.TotalAlerts = b.countRow(ctx, "SELECT COUNT(*) FROM fraud_alerts"+where, args...)
	out.ResolvedAlerts = b.countRow(ctx,
		"SELECT COUNT(*) FROM fraud_alerts"+andWhere(where, "status = 'resolved'"), args...)
	if out.TotalAlerts > 0 {
		out.ResolutionRate = int(float64(out.ResolvedAlerts) / float64(out.TotalAlerts) * 100)
	}
	return out
}
