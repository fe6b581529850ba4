// Package queue defines the account events exchanged over the message broker
// and the consumer that records them.
package queue

import "time"

// Event types carried in AccountEvent.Type.
const (
	EventRegistered      = "account.registered"
	EventLoggedIn        = "account.logged_in"
	EventPasswordChanged = "account.password_changed"
	EventProfileUpserted = "profile.upserted"
)

// AccountEvent is published after an account-level change has been
// committed. It carries identifiers only, never credentials or tokens.
type AccountEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	Mail       string    `json:"mail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAccountEvent stamps an event with the current UTC time.
func NewAccountEvent(typ, accountID, mail string) AccountEvent {
	return AccountEvent{Type: typ, AccountID: accountID, Mail: mail, OccurredAt: time.Now().UTC()}
}
