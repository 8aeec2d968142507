package models

import "time"

// LedgerEvent is published after a state change. Amount and Balance use
// decimal string notation so no precision is lost on the wire.
type LedgerEvent struct {
	Type      EventType `json:"event_type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Balance   string    `json:"balance,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventUserRegistered     EventType = "user_registered"
	EventTransactionApplied EventType = "transaction_applied"
)

func (t EventType) Valid() bool {
	return t == EventUserRegistered || t == EventTransactionApplied
}
