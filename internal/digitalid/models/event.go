package models

import "time"

type EventType string

const (
	EventIssued             EventType = "DIGITAL_ID_ISSUED"
	EventAccessed           EventType = "DIGITAL_ID_ACCESSED"
	EventConsentUpdated     EventType = "CONSENT_UPDATED"
	EventLostReported       EventType = "DIGITAL_ID_LOST_REPORTED"
	EventEmergencyTriggered EventType = "EMERGENCY_ACCESS_TRIGGERED"
	EventAutoExpirationRun  EventType = "AUTO_EXPIRATION_RUN"
	EventRevoked            EventType = "DIGITAL_ID_REVOKED"
)

// LifecycleEvent is an append-only compliance record. Not used for authorization.
type LifecycleEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"eventType"`
	CredentialID string         `json:"blockchainId,omitempty"`
	SubjectID    string         `json:"touristId,omitempty"`
	LedgerTxRef  string         `json:"transactionHash,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
