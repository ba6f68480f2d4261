package events

import (
	"time"

	"github.com/spec-kit/funding-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	// EventTokenIssued follows every successful issuance, bound or not.
	EventTokenIssued EventType = "token_issued"
)

// Event represents a token lifecycle event emitted by the token service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Account   string      `json:"account"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TokenIssuedPayload carries the audit view of an issued token. The token itself is
// never part of an event.
type TokenIssuedPayload struct {
	Record domain.IssuanceRecord `json:"record"`
}
