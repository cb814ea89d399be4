package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Context carries per-tenant delivery metadata inside every envelope.
// Field names are part of the cross-process wire contract.
type Context struct {
	OrgID      string `json:"orgId"`
	UserID     string `json:"userId"`
	TenantPlan string `json:"tenantPlan"`
	TraceID    string `json:"traceId"`
	Source     string `json:"source"`
}

// Envelope is the immutable wrapper around a domain event's payload plus
// delivery metadata. It is created once at publish, fanned out to every
// consumer group, and never mutated. Field names are part of the
// cross-process wire contract and must remain stable.
type Envelope struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Version     int            `json:"version"`
	Data        map[string]any `json:"data"`
	Context     Context        `json:"context"`
	Timestamp   time.Time      `json:"timestamp"`
	PublishedAt int64          `json:"publishedAt"` // epoch milliseconds
}

// newEnvelope wraps a payload for publication. Callers that do not name a
// source default to "api".
func newEnvelope(eventType string, version int, data map[string]any, evCtx Context) *Envelope {
	if evCtx.Source == "" {
		evCtx.Source = "api"
	}
	now := time.Now().UTC()
	return &Envelope{
		ID:          "evt-" + uuid.NewString(),
		Type:        eventType,
		Version:     version,
		Data:        data,
		Context:     evCtx,
		Timestamp:   now,
		PublishedAt: now.UnixMilli(),
	}
}
