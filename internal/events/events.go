package events

import (
	"time"
)

// Type identifies a credential-lifecycle event.
type Type string

const (
	TypeCodeIssued   Type = "authorization_code_created"
	TypeCodeRedeemed Type = "authorization_code_redeemed"

	TypeTokenIssued  Type = "token_created"
	TypeTokenRefresh Type = "token_refreshed"
	TypeTokenRevoked Type = "token_revoked"

	TypeClientRegistered Type = "client_registered"

	TypeUserAuthenticated Type = "user_authenticated"
	TypeUserAuthFailed    Type = "user_authentication_failed"
)

// Event is a single lifecycle occurrence. Fields that do not apply to a
// given type stay empty; secrets and token values never appear here.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ClientID  string    `json:"client_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	GrantType string    `json:"grant_type,omitempty"`
	Scope     string    `json:"scope,omitempty"`
}

// Publisher delivers lifecycle events to interested consumers. Publish
// must never block the protocol path; slow or absent consumers lose
// events rather than stalling token issuance.
type Publisher interface {
	Publish(event Event)
	Close() error
}

// NopPublisher drops everything. Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
func (NopPublisher) Close() error  { return nil }

// filter applies the configured allow-list; an empty list allows all.
type filter struct {
	allowed map[Type]struct{}
}

func newFilter(eventTypes []string) *filter {
	if len(eventTypes) == 0 {
		return &filter{}
	}
	allowed := make(map[Type]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		allowed[Type(t)] = struct{}{}
	}
	return &filter{allowed: allowed}
}

func (f *filter) allows(t Type) bool {
	if f.allowed == nil {
		return true
	}
	_, ok := f.allowed[t]
	return ok
}
