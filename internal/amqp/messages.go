// Package amqp publishes and consumes record change events. The server
// emits one event per successful create/update/delete; the export worker
// consumes them to keep the export target converged with the store.
package amqp

import (
	"encoding/json"
	"time"

	"finova/internal/core"
)

// Event names carried in record event messages.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// RecordEventMessage is a lightweight change notification. It carries only
// identity; consumers fetch the full record from the store database.
type RecordEventMessage struct {
	Event     string    `json:"event"`
	Kind      core.Kind `json:"kind"`
	RecordID  string    `json:"record_id"`
	Owner     string    `json:"owner"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordEvent builds an event message stamped with the current time.
func NewRecordEvent(event string, kind core.Kind, recordID, owner string) *RecordEventMessage {
	return &RecordEventMessage{
		Event:     event,
		Kind:      kind,
		RecordID:  recordID,
		Owner:     owner,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *RecordEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordEventFromJSON parses a message from JSON bytes.
func RecordEventFromJSON(data []byte) (*RecordEventMessage, error) {
	var msg RecordEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
