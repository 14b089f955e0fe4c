package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// LedgerEventMessage notifies downstream consumers that an account's ledger
// changed. It carries only identifiers; the verify worker re-reads the full
// history from the database, so a stale or duplicated message is harmless.
type LedgerEventMessage struct {
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(userID, transactionID, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		UserID:        userID,
		TransactionID: transactionID,
		Action:        action,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEventMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("ledger event missing user_id")
	}
	switch m.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return fmt.Errorf("unknown ledger event action %q", m.Action)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
