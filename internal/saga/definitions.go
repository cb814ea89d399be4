package saga

import (
	"time"

	"trustchecker.io/trustchecker/internal/domain"
)

// Saga keys for the builtin cross-domain workflows.
const (
	KeyScanVerification   = "SCAN_VERIFICATION"
	KeyShipmentLifecycle  = "SHIPMENT_LIFECYCLE"
	KeyFraudInvestigation = "FRAUD_INVESTIGATION"
)

// Step is one forward action of a saga, with an optional compensation
// action used to undo it during rollback. Steps without compensation
// (read-only or immutable writes) are skipped when compensating.
type Step struct {
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	Action       string `json:"action"`
	Compensation string `json:"compensation,omitempty"`
}

// Definition is a registered saga workflow: an ordered step list under a
// single wall-clock budget. TriggerEvent documents which domain event
// conventionally starts the saga; the orchestrator does not enforce it.
type Definition struct {
	Name         string        `json:"name"`
	TriggerEvent string        `json:"triggerEvent"`
	Timeout      time.Duration `json:"-"`
	Steps        []Step        `json:"steps"`
}

// builtinDefinitions are the platform's core cross-boundary workflows.
func builtinDefinitions() map[string]Definition {
	return map[string]Definition{
		KeyScanVerification: {
			Name:         "ScanVerificationSaga",
			TriggerEvent: "scan.created",
			Timeout:      30 * time.Second,
			Steps: []Step{
				{Name: "validate_product", Domain: domain.KeyProductAuthenticity, Action: "validateProductExists"},
				{Name: "run_fraud_check", Domain: domain.KeyRiskIntelligence, Action: "runFraudDetection", Compensation: "cancelFraudAlert"},
				{Name: "update_trust_score", Domain: domain.KeyProductAuthenticity, Action: "recalculateTrustScore", Compensation: "revertTrustScore"},
				{Name: "send_notification", Domain: domain.KeyIdentity, Action: "notifyScanResult"},
			},
		},
		KeyShipmentLifecycle: {
			Name:         "ShipmentLifecycleSaga",
			TriggerEvent: "shipment.delivered",
			Timeout:      60 * time.Second,
			Steps: []Step{
				{Name: "verify_delivery", Domain: domain.KeySupplyChain, Action: "verifyDeliveryCheckpoint"},
				{Name: "update_inventory", Domain: domain.KeySupplyChain, Action: "incrementInventory", Compensation: "decrementInventory"},
				{Name: "update_partner_score", Domain: domain.KeySupplyChain, Action: "recalculatePartnerScore", Compensation: "revertPartnerScore"},
				{Name: "generate_epcis_event", Domain: domain.KeySupplyChain, Action: "createDeliveryEPCIS"},
			},
		},
		KeyFraudInvestigation: {
			Name:         "FraudInvestigationSaga",
			TriggerEvent: "fraud.alert.created",
			Timeout:      120 * time.Second,
			Steps: []Step{
				{Name: "collect_evidence", Domain: domain.KeyProductAuthenticity, Action: "collectScanEvidence"},
				{Name: "analyze_risk_pattern", Domain: domain.KeyRiskIntelligence, Action: "analyzeRiskPattern"},
				{Name: "recalculate_trust", Domain: domain.KeyProductAuthenticity, Action: "degradeTrustScore", Compensation: "restoreTrustScore"},
				{Name: "notify_stakeholders", Domain: domain.KeyIdentity, Action: "notifyFraudDetected"},
			},
		},
	}
}
