package amqp

import (
	"encoding/json"
	"time"
)

// LedgerUpdateMessage signals that the local ledger changed. It carries only
// the revision and the month that triggered the change; the worker reloads
// the full snapshot from the database before pushing.
type LedgerUpdateMessage struct {
	Op        string    `json:"op"` // "save", "delete", "undo", "redo"
	Month     string    `json:"month,omitempty"`
	Revision  int64     `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerUpdateMessage creates an update message stamped with the current time
func NewLedgerUpdateMessage(op, month string, revision int64) *LedgerUpdateMessage {
	return &LedgerUpdateMessage{
		Op:        op,
		Month:     month,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerUpdateMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerUpdateMessageFromJSON creates a message from JSON bytes
func LedgerUpdateMessageFromJSON(data []byte) (*LedgerUpdateMessage, error) {
	var msg LedgerUpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
