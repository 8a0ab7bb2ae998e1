package amqp

import (
	"encoding/json"
	"time"
)

// Change reasons carried on ledger messages. The worker does not branch on
// them; they exist for observability.
const (
	ReasonMemberChange      = "member_change"
	ReasonTransactionChange = "transaction_change"
)

// LedgerChangedMessage tells the worker that a user's ledger mutated and the
// stored insight is stale. It carries only the user id; the worker reloads
// the collections from storage.
type LedgerChangedMessage struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a change notification for one user's ledger.
func NewLedgerChangedMessage(userID, reason string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON creates a message from JSON bytes
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
