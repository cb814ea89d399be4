// Package domain defines the platform's bounded contexts and the registry
// that enforces exclusive ownership of tables and domain events across
// them. Ownership conflicts are configuration defects, so registration
// fails fast at startup rather than degrading at runtime.
package domain

import (
	"sort"
	"sync"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
)

// BoundaryCheck is the result of probing a write set against domain
// boundaries. When more than one domain owns the touched tables the write
// cannot be a single local transaction and needs a saga.
type BoundaryCheck struct {
	Domains         []string `json:"domains"`
	CrossesBoundary bool     `json:"crossesBoundary"`
	RequiresSaga    bool     `json:"requiresSaga"`
}

// OwnershipResult reports whether a domain may publish an event type.
// Unregistered events are allowed with a warning.
type OwnershipResult struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// DomainStats summarizes one registered domain for diagnostics.
type DomainStats struct {
	Name           string `json:"name"`
	AggregateRoots int    `json:"aggregateRoots"`
	Entities       int    `json:"entities"`
	Invariants     int    `json:"invariants"`
	Tables         int    `json:"tables"`
	Events         int    `json:"events"`
}

// Stats holds registry-wide counters for diagnostics.
type Stats struct {
	TotalDomains    int                    `json:"totalDomains"`
	TotalInvariants int                    `json:"totalInvariants"`
	TotalTables     int                    `json:"totalTables"`
	TotalEvents     int                    `json:"totalEvents"`
	Domains         map[string]DomainStats `json:"domains"`
}

// Registry holds bounded context definitions with exclusive table and
// event ownership indexes.
type Registry struct {
	mu             sync.RWMutex
	domains        map[string]*Domain
	order          []string
	tableOwnership map[string]string
	eventOwnership map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		domains:        make(map[string]*Domain),
		tableOwnership: make(map[string]string),
		eventOwnership: make(map[string]string),
	}
}

// Default returns a registry preloaded with the builtin bounded contexts.
// The builtin set is static and disjoint by construction, so a conflict
// here is a programming error and panics.
func Default() *Registry {
	r := NewRegistry()
	for _, d := range builtinDomains() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a domain. It fails with an OWNERSHIP_CONFLICT error when
// any owned table or domain event is already claimed by another domain;
// on conflict nothing is registered.
func (r *Registry) Register(d Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, table := range d.OwnedTables {
		if owner, taken := r.tableOwnership[table]; taken {
			return apperrors.Newf(apperrors.CodeOwnershipConflict,
				"table %q already owned by %s, cannot assign to %s", table, owner, d.Key)
		}
	}
	for _, event := range d.DomainEvents {
		if owner, taken := r.eventOwnership[event]; taken {
			return apperrors.Newf(apperrors.CodeOwnershipConflict,
				"event %q already owned by %s, cannot assign to %s", event, owner, d.Key)
		}
	}

	copied := d
	r.domains[d.Key] = &copied
	r.order = append(r.order, d.Key)
	for _, table := range d.OwnedTables {
		r.tableOwnership[table] = d.Key
	}
	for _, event := range d.DomainEvents {
		r.eventOwnership[event] = d.Key
	}
	return nil
}

// GetDomain returns the domain for a key, or nil when unknown.
func (r *Registry) GetDomain(key string) *Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.domains[key]
}

// GetDomainByTable returns the domain owning a table, or nil.
func (r *Registry) GetDomainByTable(table string) *Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.tableOwnership[table]; ok {
		return r.domains[key]
	}
	return nil
}

// GetDomainByEvent returns the domain owning an event type, or nil.
func (r *Registry) GetDomainByEvent(eventType string) *Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.eventOwnership[eventType]; ok {
		return r.domains[key]
	}
	return nil
}

// GetInvariantsForDomain returns a domain's invariants, empty for unknown
// keys.
func (r *Registry) GetInvariantsForDomain(key string) []Invariant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[key]
	if !ok {
		return nil
	}
	return append([]Invariant(nil), d.Invariants...)
}

// DomainInvariant is an invariant annotated with its owning domain's name.
type DomainInvariant struct {
	Domain string `json:"domain"`
	Invariant
}

// GetAllInvariants returns every invariant across all domains in
// registration order.
func (r *Registry) GetAllInvariants() []DomainInvariant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []DomainInvariant
	for _, key := range r.order {
		d := r.domains[key]
		for _, inv := range d.Invariants {
			all = append(all, DomainInvariant{Domain: d.Name, Invariant: inv})
		}
	}
	return all
}

// CheckTransactionBoundary resolves the distinct owning domains of a write
// set. Tables owned by no domain are ignored.
func (r *Registry) CheckTransactionBoundary(tables []string) BoundaryCheck {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var domains []string
	for _, table := range tables {
		owner, ok := r.tableOwnership[table]
		if !ok {
			continue
		}
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		domains = append(domains, owner)
	}
	sort.Strings(domains)

	crosses := len(domains) > 1
	return BoundaryCheck{
		Domains:         domains,
		CrossesBoundary: crosses,
		RequiresSaga:    crosses,
	}
}

// ValidateEventOwnership checks that an event type is published by its
// owning domain. Event types not claimed by any domain pass with a
// warning.
func (r *Registry) ValidateEventOwnership(eventType, publisherDomain string) OwnershipResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.eventOwnership[eventType]
	if !ok {
		return OwnershipResult{
			Valid:   true,
			Warning: "event \"" + eventType + "\" not registered in any domain",
		}
	}
	if owner != publisherDomain {
		return OwnershipResult{
			Valid: false,
			Error: "event \"" + eventType + "\" owned by " + owner + ", cannot be published by " + publisherDomain,
		}
	}
	return OwnershipResult{Valid: true}
}

// GetStats returns registry counters for diagnostics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDomains: len(r.domains),
		TotalTables:  len(r.tableOwnership),
		TotalEvents:  len(r.eventOwnership),
		Domains:      make(map[string]DomainStats, len(r.domains)),
	}
	for key, d := range r.domains {
		stats.TotalInvariants += len(d.Invariants)
		stats.Domains[key] = DomainStats{
			Name:           d.Name,
			AggregateRoots: len(d.AggregateRoots),
			Entities:       len(d.Entities),
			Invariants:     len(d.Invariants),
			Tables:         len(d.OwnedTables),
			Events:         len(d.DomainEvents),
		}
	}
	return stats
}
