package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateEvent_ValidPayload(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	result := r.ValidateEvent("scan.created", map[string]any{
		"productId":  "prod-1",
		"location":   "Berlin",
		"deviceInfo": "ios/17",
		"trustScore": 87.5,
	})

	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
}

func TestValidateEvent_MissingRequiredField(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	result := r.ValidateEvent("scan.created", map[string]any{
		"productId": "prod-1",
		"location":  "Berlin",
	})

	require.False(t, result.Valid)
	require.Contains(t, result.Errors, "missing required field: deviceInfo")
}

func TestValidateEvent_NilRequiredField(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	result := r.ValidateEvent("shipment.delivered", map[string]any{
		"shipmentId":  "ship-1",
		"deliveredAt": nil,
	})

	require.False(t, result.Valid)
	require.Contains(t, result.Errors, "missing required field: deliveredAt")
}

func TestValidateEvent_TypeMismatch(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	result := r.ValidateEvent("scan.created", map[string]any{
		"productId":  "prod-1",
		"location":   "Berlin",
		"deviceInfo": "ios/17",
		"trustScore": "very high",
	})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], `field "trustScore" expected number`)
}

func TestValidateEvent_UnknownEventType(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	result := r.ValidateEvent("nonsense.event", map[string]any{"a": 1})

	require.False(t, result.Valid)
	require.Contains(t, result.Errors, "unknown event type: nonsense.event")
}

func TestValidateEvent_OptionalFieldsSkipped(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	// Optional properties absent or nil are not errors.
	result := r.ValidateEvent("fraud.alert.created", map[string]any{
		"alertId":   "alert-1",
		"productId": "prod-1",
		"severity":  "high",
		"score":     nil,
	})

	require.True(t, result.Valid)
}

func TestValidateEvent_ArrayAndObjectTypes(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("test.complex", Definition{
		Version:  1,
		Required: []string{"items"},
		Properties: map[string]FieldType{
			"items": TypeArray,
			"meta":  TypeObject,
			"flag":  TypeBoolean,
		},
	})

	result := r.ValidateEvent("test.complex", map[string]any{
		"items": []any{"a", "b"},
		"meta":  map[string]any{"k": "v"},
		"flag":  true,
	})
	require.True(t, result.Valid)

	result = r.ValidateEvent("test.complex", map[string]any{
		"items": "not-a-list",
	})
	require.False(t, result.Valid)
}

func TestGetSchemaVersion(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	require.Equal(t, 1, r.GetSchemaVersion("scan.created"))
	require.Equal(t, 0, r.GetSchemaVersion("unknown.type"))
}

func TestListEventTypes(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	infos := r.ListEventTypes()
	require.Len(t, infos, 14)

	byType := make(map[string]EventTypeInfo, len(infos))
	for _, info := range infos {
		byType[info.Type] = info
	}
	require.Contains(t, byType, "scan.created")
	require.Equal(t, []string{"productId", "location", "deviceInfo"}, byType["scan.created"].Required)
}
