package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditIntentCreated   = "intent_created"
	AuditDepositResolved = "deposit_resolved"
	AuditDepositFailed   = "deposit_failed"
	AuditClaimAuthorized = "claim_authorized"
)

// AuditLog never carries secrets: only addresses, hashes and indexes.
type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	ActorType  string    `json:"actor_type"` // sender/recipient/system
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityRef  string    `json:"entity_ref"`
	RequestID  *string   `json:"request_id,omitempty"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
