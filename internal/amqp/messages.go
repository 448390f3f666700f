package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotSavedMessage announces that a household snapshot reached a new
// revision. It carries no document: the worker reads the revision from the
// database.
type SnapshotSavedMessage struct {
	Household string    `json:"household"`
	Revision  int64     `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotSavedMessage creates a sync message for household at revision.
func NewSnapshotSavedMessage(household string, revision int64) *SnapshotSavedMessage {
	return &SnapshotSavedMessage{
		Household: household,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotSavedMessageFromJSON creates a message from JSON bytes
func SnapshotSavedMessageFromJSON(data []byte) (*SnapshotSavedMessage, error) {
	var msg SnapshotSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Notification is the payload pushed to household members after every
// committed mutation.
type Notification struct {
	Title    string `json:"title"`
	Amount   int64  `json:"amount"`
	Category string `json:"category"`
	Note     string `json:"note"`
	Date     string `json:"date"`
	Color    string `json:"color"`
	Operator string `json:"operator"`

	Household string    `json:"household"`
	EntryID   string    `json:"entryId,omitempty"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON converts the notification to JSON bytes
func (n *Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}
