package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
)

func TestDefault_RegistersBuiltins(t *testing.T) {
	t.Parallel()
	r := Default()

	stats := r.GetStats()
	require.Equal(t, 6, stats.TotalDomains)
	require.Equal(t, 9, stats.TotalEvents)
	require.Equal(t, 31, stats.TotalTables)

	for _, key := range []string{
		KeyProductAuthenticity, KeySupplyChain, KeyRiskIntelligence,
		KeyESGCompliance, KeyIdentity, KeyBilling,
	} {
		require.NotNil(t, r.GetDomain(key), "domain %s missing", key)
	}
}

func TestRegister_TableOwnershipConflict(t *testing.T) {
	t.Parallel()
	r := Default()

	err := r.Register(Domain{
		Key:         "ROGUE",
		Name:        "Rogue",
		OwnedTables: []string{"users"},
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.CodeOwnershipConflict))
	require.Contains(t, err.Error(), `table "users" already owned by IDENTITY`)

	// Nothing registered on conflict.
	require.Nil(t, r.GetDomain("ROGUE"))
	require.Equal(t, KeyIdentity, r.GetDomainByTable("users").Key)
}

func TestRegister_EventOwnershipConflict(t *testing.T) {
	t.Parallel()
	r := Default()

	err := r.Register(Domain{
		Key:          "ROGUE",
		Name:         "Rogue",
		DomainEvents: []string{"scan.created"},
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.CodeOwnershipConflict))
	require.Contains(t, err.Error(), "PRODUCT_AUTHENTICITY")
}

func TestGetDomainByTableAndEvent(t *testing.T) {
	t.Parallel()
	r := Default()

	require.Equal(t, KeySupplyChain, r.GetDomainByTable("shipments").Key)
	require.Equal(t, KeyRiskIntelligence, r.GetDomainByEvent("fraud.alert.created").Key)
	require.Nil(t, r.GetDomainByTable("no_such_table"))
	require.Nil(t, r.GetDomainByEvent("no.such.event"))
}

func TestCheckTransactionBoundary(t *testing.T) {
	t.Parallel()
	r := Default()

	tests := []struct {
		name         string
		tables       []string
		wantDomains  []string
		requiresSaga bool
	}{
		{
			name:        "single domain",
			tables:      []string{"products", "scan_events"},
			wantDomains: []string{KeyProductAuthenticity},
		},
		{
			name:         "cross boundary",
			tables:       []string{"products", "fraud_alerts"},
			wantDomains:  []string{KeyProductAuthenticity, KeyRiskIntelligence},
			requiresSaga: true,
		},
		{
			name:        "unowned tables ignored",
			tables:      []string{"products", "unknown_table"},
			wantDomains: []string{KeyProductAuthenticity},
		},
		{
			name:   "all unowned",
			tables: []string{"a", "b"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			check := r.CheckTransactionBoundary(tc.tables)
			require.ElementsMatch(t, tc.wantDomains, check.Domains)
			require.Equal(t, tc.requiresSaga, check.CrossesBoundary)
			require.Equal(t, tc.requiresSaga, check.RequiresSaga)
		})
	}
}

func TestValidateEventOwnership(t *testing.T) {
	t.Parallel()
	r := Default()

	owned := r.ValidateEventOwnership("scan.created", KeyProductAuthenticity)
	require.True(t, owned.Valid)
	require.Empty(t, owned.Warning)

	foreign := r.ValidateEventOwnership("scan.created", KeyBilling)
	require.False(t, foreign.Valid)
	require.Contains(t, foreign.Error, "owned by PRODUCT_AUTHENTICITY")

	unregistered := r.ValidateEventOwnership("ai.job.queued", KeyBilling)
	require.True(t, unregistered.Valid)
	require.Contains(t, unregistered.Warning, "not registered in any domain")
}

func TestGetAllInvariants(t *testing.T) {
	t.Parallel()
	r := Default()

	all := r.GetAllInvariants()
	require.Equal(t, 30, len(all))
	require.Equal(t, "ProductAuthenticity", all[0].Domain)
	require.Equal(t, "PA-001", all[0].ID)

	invs := r.GetInvariantsForDomain(KeyRiskIntelligence)
	require.Len(t, invs, 5)
	require.Empty(t, r.GetInvariantsForDomain("NOPE"))
}
