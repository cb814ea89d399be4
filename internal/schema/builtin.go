package schema

// builtinSchemas is the platform event schema table. Each bounded context
// owns its section; ownership is enforced separately by the domain registry.
var builtinSchemas = map[string]Definition{
	// Scan domain
	"scan.created": {
		Version:  1,
		Required: []string{"productId", "location", "deviceInfo"},
		Properties: map[string]FieldType{
			"productId":  TypeString,
			"location":   TypeString,
			"deviceInfo": TypeString,
			"trustScore": TypeNumber,
			"userId":     TypeString,
			"orgId":      TypeString,
		},
	},
	"scan.verified": {
		Version:  1,
		Required: []string{"scanId", "productId", "result"},
		Properties: map[string]FieldType{
			"scanId":     TypeString,
			"productId":  TypeString,
			"result":     TypeString, // authentic | suspicious | counterfeit
			"trustScore": TypeNumber,
			"verifiedBy": TypeString,
		},
	},
	"scan.fraud_detected": {
		Version:  1,
		Required: []string{"scanId", "productId", "severity", "reason"},
		Properties: map[string]FieldType{
			"scanId":     TypeString,
			"productId":  TypeString,
			"severity":   TypeString, // low | medium | high | critical
			"reason":     TypeString,
			"confidence": TypeNumber,
			"orgId":      TypeString,
		},
	},

	// Supply chain domain
	"shipment.created": {
		Version:  1,
		Required: []string{"shipmentId", "origin", "destination"},
		Properties: map[string]FieldType{
			"shipmentId":  TypeString,
			"origin":      TypeString,
			"destination": TypeString,
			"products":    TypeArray,
			"carrier":     TypeString,
			"orgId":       TypeString,
		},
	},
	"shipment.checkpoint": {
		Version:  1,
		Required: []string{"shipmentId", "location", "status"},
		Properties: map[string]FieldType{
			"shipmentId":  TypeString,
			"location":    TypeString,
			"status":      TypeString,
			"temperature": TypeNumber,
			"humidity":    TypeNumber,
			"timestamp":   TypeString,
		},
	},
	"shipment.delivered": {
		Version:  1,
		Required: []string{"shipmentId", "deliveredAt"},
		Properties: map[string]FieldType{
			"shipmentId":  TypeString,
			"deliveredAt": TypeString,
			"receivedBy":  TypeString,
			"condition":   TypeString,
		},
	},
	"inventory.alert": {
		Version:  1,
		Required: []string{"productId", "alertType", "currentLevel"},
		Properties: map[string]FieldType{
			"productId":    TypeString,
			"alertType":    TypeString, // low_stock | overstock | expiring
			"currentLevel": TypeNumber,
			"threshold":    TypeNumber,
			"orgId":        TypeString,
		},
	},

	// AI jobs domain
	"ai.job.queued": {
		Version:  1,
		Required: []string{"jobId", "jobType", "service"},
		Properties: map[string]FieldType{
			"jobId":      TypeString,
			"jobType":    TypeString,
			"service":    TypeString, // simulation | detection | analytics
			"priority":   TypeNumber,
			"orgId":      TypeString,
			"tenantPlan": TypeString,
		},
	},
	"ai.job.completed": {
		Version:  1,
		Required: []string{"jobId", "jobType", "durationMs"},
		Properties: map[string]FieldType{
			"jobId":      TypeString,
			"jobType":    TypeString,
			"durationMs": TypeNumber,
			"resultSize": TypeNumber,
			"service":    TypeString,
		},
	},
	"ai.job.failed": {
		Version:  1,
		Required: []string{"jobId", "jobType", "error"},
		Properties: map[string]FieldType{
			"jobId":      TypeString,
			"jobType":    TypeString,
			"error":      TypeString,
			"attempts":   TypeNumber,
			"service":    TypeString,
			"movedToDLQ": TypeBoolean,
		},
	},

	// Fraud domain
	"fraud.alert.created": {
		Version:  1,
		Required: []string{"alertId", "productId", "severity"},
		Properties: map[string]FieldType{
			"alertId":   TypeString,
			"productId": TypeString,
			"severity":  TypeString,
			"score":     TypeNumber,
			"source":    TypeString,
			"orgId":     TypeString,
		},
	},
	"fraud.alert.resolved": {
		Version:  1,
		Required: []string{"alertId", "resolvedBy", "resolution"},
		Properties: map[string]FieldType{
			"alertId":    TypeString,
			"resolvedBy": TypeString,
			"resolution": TypeString, // confirmed_fraud | false_positive | under_review
		},
	},

	// System domain
	"system.health.degraded": {
		Version:  1,
		Required: []string{"service", "reason"},
		Properties: map[string]FieldType{
			"service":      TypeString,
			"reason":       TypeString,
			"circuitState": TypeString,
		},
	},
	"system.health.recovered": {
		Version:  1,
		Required: []string{"service"},
		Properties: map[string]FieldType{
			"service":    TypeString,
			"downtimeMs": TypeNumber,
		},
	},
}
