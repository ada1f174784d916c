package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// NewEvent
// ---------------------------------------------------------------------------

func TestNewEvent_Success(t *testing.T) {
	data := map[string]string{"incident_id": "abc"}

	event, err := NewEvent(SubjectIncidentCreated, Source, data)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, SubjectIncidentCreated, event.Type)
	assert.Equal(t, Source, event.Source)
	assert.Equal(t, EnvelopeVersion, event.Version)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	_, err = uuid.Parse(event.ID)
	assert.NoError(t, err)

	var decoded map[string]string
	err = json.Unmarshal(event.Data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "abc", decoded["incident_id"])
}

func TestNewEvent_NilData(t *testing.T) {
	event, err := NewEvent("test.event", "test-source", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), event.Data)
}

func TestNewEvent_ComplexData(t *testing.T) {
	data := IncidentCreatedData{
		IncidentID:  uuid.New(),
		DriverID:    uuid.New(),
		ServiceType: "tire",
		Latitude:    40.7128,
		Longitude:   -74.0060,
		Priority:    "standard",
		CreatedAt:   time.Now(),
	}

	event, err := NewEvent(SubjectIncidentCreated, Source, data)
	require.NoError(t, err)

	var decoded IncidentCreatedData
	err = json.Unmarshal(event.Data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, data.IncidentID, decoded.IncidentID)
	assert.Equal(t, data.ServiceType, decoded.ServiceType)
	assert.Equal(t, data.Latitude, decoded.Latitude)
	assert.Equal(t, data.Longitude, decoded.Longitude)
	assert.Equal(t, data.Priority, decoded.Priority)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	// Channels cannot be marshaled to JSON
	event, err := NewEvent("test", "src", make(chan int))
	assert.Error(t, err)
	assert.Nil(t, event)
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		event, err := NewEvent("test", "src", nil)
		require.NoError(t, err)
		assert.False(t, ids[event.ID], "duplicate event ID generated")
		ids[event.ID] = true
	}
}

func TestNewEvent_TimestampIsUTC(t *testing.T) {
	event, err := NewEvent("test", "src", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}

// ---------------------------------------------------------------------------
// Event JSON serialization round-trip
// ---------------------------------------------------------------------------

func TestEvent_JSONRoundTrip(t *testing.T) {
	original, err := NewEvent(SubjectOfferAccepted, Source, map[string]int{"attempt": 2})
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Event
	err = json.Unmarshal(data, &restored)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.Source, restored.Source)
	assert.Equal(t, original.Version, restored.Version)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

// ---------------------------------------------------------------------------
// Subject constants
// ---------------------------------------------------------------------------

func TestSubjectConstants(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{"IncidentCreated", SubjectIncidentCreated, "incidents.created"},
		{"IncidentCancelled", SubjectIncidentCancelled, "incidents.cancelled"},
		{"IncidentAssigned", SubjectIncidentAssigned, "incidents.assigned"},
		{"IncidentEscalated", SubjectIncidentEscalated, "incidents.escalated"},
		{"IncidentStatus", SubjectIncidentStatus, "incidents.status_changed"},
		{"OfferCreated", SubjectOfferCreated, "offers.created"},
		{"OfferAccepted", SubjectOfferAccepted, "offers.accepted"},
		{"OfferDeclined", SubjectOfferDeclined, "offers.declined"},
		{"OfferExpired", SubjectOfferExpired, "offers.expired"},
		{"OfferCancelled", SubjectOfferCancelled, "offers.cancelled"},
		{"VendorTimeout", SubjectVendorTimeout, "vendors.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.subject)
		})
	}
}

// ---------------------------------------------------------------------------
// DefaultConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "dispatch-engine", cfg.Name)
	assert.Equal(t, "DISPATCH", cfg.StreamName)
}

// ---------------------------------------------------------------------------
// Config struct
// ---------------------------------------------------------------------------

func TestConfig_Fields(t *testing.T) {
	cfg := Config{
		URL:        "nats://custom:4222",
		Name:       "my-service",
		StreamName: "MYSTREAM",
	}

	assert.Equal(t, "nats://custom:4222", cfg.URL)
	assert.Equal(t, "my-service", cfg.Name)
	assert.Equal(t, "MYSTREAM", cfg.StreamName)
}

// ---------------------------------------------------------------------------
// HandlerFunc type
// ---------------------------------------------------------------------------

func TestHandlerFunc_Invocation(t *testing.T) {
	var called bool
	var receivedEvent *Event

	handler := HandlerFunc(func(ctx context.Context, event *Event) error {
		called = true
		receivedEvent = event
		return nil
	})

	event, _ := NewEvent("test.event", "test", map[string]string{"key": "value"})
	err := handler(context.Background(), event)

	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, event.ID, receivedEvent.ID)
}

func TestHandlerFunc_ReturnsError(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, event *Event) error {
		return assert.AnError
	})

	event, _ := NewEvent("test", "src", nil)
	err := handler(context.Background(), event)

	assert.ErrorIs(t, err, assert.AnError)
}

// ---------------------------------------------------------------------------
// Event data types – serialization
// ---------------------------------------------------------------------------

func TestIncidentCreatedData_Serialization(t *testing.T) {
	data := IncidentCreatedData{
		IncidentID:  uuid.New(),
		DriverID:    uuid.New(),
		ServiceType: "engine",
		Latitude:    37.7749,
		Longitude:   -122.4194,
		Priority:    "high",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded IncidentCreatedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.IncidentID, decoded.IncidentID)
	assert.Equal(t, data.ServiceType, decoded.ServiceType)
	assert.Equal(t, data.Latitude, decoded.Latitude)
	assert.Equal(t, data.Longitude, decoded.Longitude)
	assert.Equal(t, data.Priority, decoded.Priority)
	assert.Equal(t, data.CreatedAt, decoded.CreatedAt)
}

func TestIncidentCancelledData_Serialization(t *testing.T) {
	data := IncidentCancelledData{
		IncidentID:  uuid.New(),
		CancelledBy: "driver",
		Reason:      "resolved independently",
		CancelledAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded IncidentCancelledData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.CancelledBy, decoded.CancelledBy)
	assert.Equal(t, data.Reason, decoded.Reason)
}

func TestOfferCreatedData_Serialization(t *testing.T) {
	data := OfferCreatedData{
		OfferID:         uuid.New(),
		IncidentID:      uuid.New(),
		VendorID:        uuid.New(),
		Attempt:         1,
		MatchScore:      0.82,
		EstimatedPayout: 125,
		ExpiresAt:       time.Now().Add(120 * time.Second).UTC().Truncate(time.Millisecond),
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded OfferCreatedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.MatchScore, decoded.MatchScore)
	assert.Equal(t, data.EstimatedPayout, decoded.EstimatedPayout)
	assert.Equal(t, data.Attempt, decoded.Attempt)
}

func TestOfferAcceptedData_Serialization(t *testing.T) {
	data := OfferAcceptedData{
		OfferID:    uuid.New(),
		IncidentID: uuid.New(),
		VendorID:   uuid.New(),
		AcceptedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded OfferAcceptedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.OfferID, decoded.OfferID)
	assert.Equal(t, data.VendorID, decoded.VendorID)
}

func TestOfferCancelledData_Serialization(t *testing.T) {
	data := OfferCancelledData{
		OfferID:     uuid.New(),
		IncidentID:  uuid.New(),
		VendorID:    uuid.New(),
		Reason:      "superseded",
		CancelledAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded OfferCancelledData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, "superseded", decoded.Reason)
}

func TestIncidentEscalatedData_Serialization(t *testing.T) {
	data := IncidentEscalatedData{
		IncidentID:  uuid.New(),
		Attempts:    3,
		FinalRadius: 78.125,
		Reason:      "no_vendor_found",
		EscalatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded IncidentEscalatedData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, 3, decoded.Attempts)
	assert.Equal(t, 78.125, decoded.FinalRadius)
}

func TestVendorTimeoutData_Serialization(t *testing.T) {
	data := VendorTimeoutData{
		IncidentID: uuid.New(),
		VendorID:   uuid.New(),
		AssignedAt: time.Now().Add(-30 * time.Minute).UTC().Truncate(time.Millisecond),
		TimedOutAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded VendorTimeoutData
	err = json.Unmarshal(b, &decoded)
	require.NoError(t, err)

	assert.Equal(t, data.VendorID, decoded.VendorID)
}

// ---------------------------------------------------------------------------
// NewEvent with each event data type – integration
// ---------------------------------------------------------------------------

func TestNewEvent_WithIncidentAssignedData(t *testing.T) {
	data := IncidentAssignedData{
		IncidentID: uuid.New(),
		VendorID:   uuid.New(),
		OfferID:    uuid.New(),
		Attempt:    1,
		AssignedAt: time.Now().UTC(),
	}

	event, err := NewEvent(SubjectIncidentAssigned, Source, data)
	require.NoError(t, err)
	assert.Equal(t, SubjectIncidentAssigned, event.Type)

	var decoded IncidentAssignedData
	err = json.Unmarshal(event.Data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, data.IncidentID, decoded.IncidentID)
}

// ---------------------------------------------------------------------------
// Bus struct – nil-safety of Connected()
// ---------------------------------------------------------------------------

func TestBus_Connected_NilConn(t *testing.T) {
	bus := &Bus{}
	assert.False(t, bus.Connected())
}

// ---------------------------------------------------------------------------
// Bus struct – Close with empty subs
// ---------------------------------------------------------------------------

func TestBus_Close_NoSubs(t *testing.T) {
	bus := &Bus{}
	// Should not panic
	bus.Close()
}

// ---------------------------------------------------------------------------
// Event struct – zero value
// ---------------------------------------------------------------------------

func TestEvent_ZeroValue(t *testing.T) {
	var event Event
	assert.Empty(t, event.ID)
	assert.Empty(t, event.Type)
	assert.Empty(t, event.Source)
	assert.True(t, event.Timestamp.IsZero())
	assert.Nil(t, event.Data)
}
