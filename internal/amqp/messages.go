package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finsight/internal/core"
)

// TransactionAction names the ledger mutation that produced an event.
type TransactionAction string

const (
	ActionCreated TransactionAction = "created"
	ActionUpdated TransactionAction = "updated"
	ActionDeleted TransactionAction = "deleted"
)

// TransactionChangedMessage announces that a user's ledger changed.
// It carries no transaction payload; consumers re-read the ledger.
type TransactionChangedMessage struct {
	EventID       string            `json:"event_id"`
	UserID        int64             `json:"user_id"`
	TransactionID int64             `json:"transaction_id,omitempty"`
	Action        TransactionAction `json:"action"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewTransactionChangedMessage stamps a fresh event ID and the current time.
func NewTransactionChangedMessage(userID, transactionID int64, action TransactionAction) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		EventID:       uuid.NewString(),
		UserID:        userID,
		TransactionID: transactionID,
		Action:        action,
		Timestamp:     time.Now().UTC(),
	}
}

func (a TransactionAction) Validate() error {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return nil
	default:
		return fmt.Errorf("%w: unknown transaction action %q", core.ErrValidation, a)
	}
}

// Validate checks the fields a consumer relies on.
func (m *TransactionChangedMessage) Validate() error {
	if m.UserID <= 0 {
		return core.ErrInvalidUser
	}
	if _, err := uuid.Parse(m.EventID); err != nil {
		return fmt.Errorf("%w: event id %q is not a uuid", core.ErrValidation, m.EventID)
	}
	return m.Action.Validate()
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionChangedMessageFromJSON decodes data. Malformed JSON is a validation error.
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode message: %v", core.ErrValidation, err)
	}
	return &msg, nil
}
