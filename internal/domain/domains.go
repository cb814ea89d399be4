package domain

// Domain keys for the six builtin bounded contexts.
const (
	KeyProductAuthenticity = "PRODUCT_AUTHENTICITY"
	KeySupplyChain         = "SUPPLY_CHAIN"
	KeyRiskIntelligence    = "RISK_INTELLIGENCE"
	KeyESGCompliance       = "ESG_COMPLIANCE"
	KeyIdentity            = "IDENTITY"
	KeyBilling             = "BILLING"
)

// Invariant is a business rule owned by a domain, together with the
// mechanism that enforces it.
type Invariant struct {
	ID          string `json:"id"`
	Rule        string `json:"rule"`
	Enforcement string `json:"enforcement"`
}

// Domain describes one bounded context: what it models, which events it
// publishes, and which storage tables it exclusively owns.
type Domain struct {
	Key            string      `json:"key"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	AggregateRoots []string    `json:"aggregateRoots"`
	Entities       []string    `json:"entities"`
	ValueObjects   []string    `json:"valueObjects"`
	Repositories   []string    `json:"repositories"`
	DomainEvents   []string    `json:"domainEvents"`
	Invariants     []Invariant `json:"invariants"`
	OwnedTables    []string    `json:"ownedTables"`
}

// builtinDomains are the platform's bounded contexts. Ownership entries
// (tables, events) must be globally disjoint; Default() panics otherwise.
func builtinDomains() []Domain {
	return []Domain{
		{
			Key:            KeyProductAuthenticity,
			Name:           "ProductAuthenticity",
			Description:    "Product registration, QR codes, scan verification, trust scoring",
			AggregateRoots: []string{"Product"},
			Entities:       []string{"Product", "QRCode", "ScanEvent", "TrustScore", "BlockchainSeal"},
			ValueObjects:   []string{"HashSeal", "TrustLevel", "ScanLocation"},
			Repositories:   []string{"ProductRepository", "ScanEventRepository", "TrustScoreRepository"},
			DomainEvents:   []string{"scan.created", "scan.verified", "scan.fraud_detected"},
			Invariants: []Invariant{
				{ID: "PA-001", Rule: "Product hash_seal must be unique per organization", Enforcement: "database_unique_constraint"},
				{ID: "PA-002", Rule: "TrustScore must be between 0 and 100", Enforcement: "domain_validation"},
				{ID: "PA-003", Rule: "QRCode cannot be reassigned after first scan", Enforcement: "aggregate_logic"},
				{ID: "PA-004", Rule: "ScanEvent must reference valid Product + QRCode", Enforcement: "foreign_key"},
				{ID: "PA-005", Rule: "Fraud detection requires minimum 3 data points", Enforcement: "service_rule"},
			},
			OwnedTables: []string{"products", "qr_codes", "scan_events", "trust_scores", "blockchain_seals"},
		},
		{
			Key:            KeySupplyChain,
			Name:           "SupplyChain",
			Description:    "Shipment tracking, inventory, partner management, EPCIS events",
			AggregateRoots: []string{"Shipment", "Inventory"},
			Entities:       []string{"Shipment", "ShipmentCheckpoint", "Inventory", "Partner", "SupplyChainEvent", "EPCISEvent", "DigitalTwinState"},
			ValueObjects:   []string{"GeoLocation", "ShipmentStatus", "InventoryLevel", "PartnerScore"},
			Repositories:   []string{"ShipmentRepository", "InventoryRepository", "PartnerRepository"},
			DomainEvents:   []string{"shipment.created", "shipment.checkpoint", "shipment.delivered", "inventory.alert"},
			Invariants: []Invariant{
				{ID: "SC-001", Rule: "Shipment status transitions: CREATED to IN_TRANSIT to DELIVERED (no backward)", Enforcement: "state_machine"},
				{ID: "SC-002", Rule: "Checkpoint timestamp must be after shipment creation", Enforcement: "domain_validation"},
				{ID: "SC-003", Rule: "Inventory quantity cannot be negative", Enforcement: "domain_validation"},
				{ID: "SC-004", Rule: "Partner score recalculated on every completed shipment", Enforcement: "domain_event"},
				{ID: "SC-005", Rule: "EPCIS events immutable after creation", Enforcement: "aggregate_logic"},
			},
			OwnedTables: []string{"shipments", "shipment_checkpoints", "inventory", "partners", "supply_chain_events", "epcis_events", "digital_twin_states"},
		},
		{
			Key:            KeyRiskIntelligence,
			Name:           "RiskIntelligence",
			Description:    "Fraud detection, anomaly detection, risk scoring, Monte Carlo simulation",
			AggregateRoots: []string{"FraudAlert"},
			Entities:       []string{"FraudAlert", "AnomalyDetection", "RiskScore"},
			ValueObjects:   []string{"Severity", "RiskLevel", "ConfidenceInterval"},
			Repositories:   []string{"FraudAlertRepository", "AnomalyRepository"},
			DomainEvents:   []string{"fraud.alert.created", "fraud.alert.resolved"},
			Invariants: []Invariant{
				{ID: "RI-001", Rule: "FraudAlert severity: LOW to MEDIUM to HIGH to CRITICAL", Enforcement: "enum_validation"},
				{ID: "RI-002", Rule: "Resolved alert cannot be reopened (create new instead)", Enforcement: "aggregate_logic"},
				{ID: "RI-003", Rule: "Anomaly score requires at least 30 data points", Enforcement: "service_rule"},
				{ID: "RI-004", Rule: "Monte Carlo simulation requires >= 1000 iterations", Enforcement: "service_rule"},
				{ID: "RI-005", Rule: "Risk score must include at least 2 contributing factors", Enforcement: "domain_validation"},
			},
			OwnedTables: []string{"fraud_alerts", "anomaly_detections"},
		},
		{
			Key:            KeyESGCompliance,
			Name:           "ESGCompliance",
			Description:    "Carbon footprint, sustainability scoring, certifications, GDPR compliance",
			AggregateRoots: []string{"SustainabilityScore", "Certification"},
			Entities:       []string{"SustainabilityScore", "Certification", "DataProcessingRecord", "ConsentRecord", "DPIARecord"},
			ValueObjects:   []string{"CarbonFootprint", "EmissionScope", "ComplianceStatus"},
			Repositories:   []string{"SustainabilityRepository", "CertificationRepository", "GDPRRepository"},
			DomainEvents:   []string{},
			Invariants: []Invariant{
				{ID: "ESG-001", Rule: "Carbon footprint Scope 1 + 2 + 3 must be >= 0", Enforcement: "domain_validation"},
				{ID: "ESG-002", Rule: "Certification expiry must be future date at creation", Enforcement: "domain_validation"},
				{ID: "ESG-003", Rule: "GDPR consent withdrawal must be honored within 72 hours", Enforcement: "service_rule"},
				{ID: "ESG-004", Rule: "DPIA required before processing sensitive data categories", Enforcement: "policy_gate"},
			},
			OwnedTables: []string{"sustainability_scores", "certifications", "data_processing_records", "consent_records", "dpia_records"},
		},
		{
			Key:            KeyIdentity,
			Name:           "Identity",
			Description:    "User management, organization, sessions, authentication, authorization",
			AggregateRoots: []string{"User", "Organization"},
			Entities:       []string{"User", "Organization", "Session", "RefreshToken", "PasskeyCredential", "KYCBusiness"},
			ValueObjects:   []string{"Role", "Plan", "TenantContext", "PasswordPolicy"},
			Repositories:   []string{"UserRepository", "OrganizationRepository", "SessionRepository"},
			DomainEvents:   []string{},
			Invariants: []Invariant{
				{ID: "ID-001", Rule: "Username and email must be unique system-wide", Enforcement: "database_unique_constraint"},
				{ID: "ID-002", Rule: "Password minimum 12 chars with 4 character types", Enforcement: "domain_validation"},
				{ID: "ID-003", Rule: "Account lockout after 5 failed attempts in 15 minutes", Enforcement: "service_rule"},
				{ID: "ID-004", Rule: "Organization slug must be unique and URL-safe", Enforcement: "database_unique_constraint"},
				{ID: "ID-005", Rule: "Enterprise tenant requires dedicated schema", Enforcement: "provisioning_rule"},
				{ID: "ID-006", Rule: "Role hierarchy: admin > manager > operator > viewer (no skip)", Enforcement: "rbac_check"},
			},
			OwnedTables: []string{"users", "organizations", "sessions", "refresh_tokens", "passkey_credentials", "kyc_businesses"},
		},
		{
			Key:            KeyBilling,
			Name:           "Billing",
			Description:    "Plans, invoices, payments, usage metering, Stripe integration",
			AggregateRoots: []string{"BillingPlan", "Invoice"},
			Entities:       []string{"BillingPlan", "Invoice", "Payment", "UsageMeter", "WebhookEndpoint", "WebhookEvent"},
			ValueObjects:   []string{"PlanTier", "PaymentStatus", "UsageQuota"},
			Repositories:   []string{"BillingRepository", "InvoiceRepository", "UsageRepository"},
			DomainEvents:   []string{},
			Invariants: []Invariant{
				{ID: "BL-001", Rule: "Plan downgrade only at billing cycle end", Enforcement: "service_rule"},
				{ID: "BL-002", Rule: "Invoice total must match sum of line items", Enforcement: "domain_validation"},
				{ID: "BL-003", Rule: "Usage meter cannot exceed plan quota without upgrade prompt", Enforcement: "feature_gate"},
				{ID: "BL-004", Rule: "Payment refund within 30-day window only", Enforcement: "service_rule"},
				{ID: "BL-005", Rule: "Webhook retry: 3 attempts with exponential backoff", Enforcement: "delivery_policy"},
			},
			OwnedTables: []string{"billing_plans", "invoices", "payments", "usage_meters", "webhook_endpoints", "webhook_events"},
		},
	}
}
