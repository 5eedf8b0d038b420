package amqp

import (
	"encoding/json"
	"time"
)

// Journal event kinds published after a committed ledger mutation.
const (
	KindTransactionAdded   = "transaction_added"
	KindTransactionUpdated = "transaction_updated"
	KindTransactionDeleted = "transaction_deleted"
	KindAccountDeleted     = "account_deleted"
)

// JournalEventMessage is a lightweight notification of a committed mutation.
// It carries only identifiers; the worker fetches current state from the
// database, except for deletions where the row is already gone.
type JournalEventMessage struct {
	Kind          string    `json:"kind"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	AccountID     int64     `json:"account_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewJournalEventMessage creates an event stamped with the current time.
func NewJournalEventMessage(kind string, transactionID, accountID int64) *JournalEventMessage {
	return &JournalEventMessage{
		Kind:          kind,
		TransactionID: transactionID,
		AccountID:     accountID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *JournalEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// JournalEventMessageFromJSON creates a message from JSON bytes
func JournalEventMessageFromJSON(data []byte) (*JournalEventMessage, error) {
	var msg JournalEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
