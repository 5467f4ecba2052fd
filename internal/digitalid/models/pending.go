package models

import "time"

// WriteKind names a local write that follows a confirmed ledger call.
type WriteKind string

const (
	WriteIssue   WriteKind = "issue"
	WriteAccess  WriteKind = "access"
	WriteConsent WriteKind = "consent"
	WriteLost    WriteKind = "lost"
	WriteExpire  WriteKind = "expire"
	WriteRevoke  WriteKind = "revoke"
	WriteEvent   WriteKind = "event"
)

// PendingWrite is everything needed to bring the local stores in line with a
// ledger fact. Applying the same write twice has no additional effect.
type PendingWrite struct {
	ID           string            `json:"id"`
	Kind         WriteKind         `json:"kind"`
	CredentialID string            `json:"credentialId,omitempty"`
	Credential   *Credential       `json:"credential,omitempty"`
	Access       *AccessLogEntry   `json:"access,omitempty"`
	Events       []*LifecycleEvent `json:"events,omitempty"`
	At           time.Time         `json:"at"`
	Attempts     int               `json:"attempts"`
	LastError    string            `json:"lastError,omitempty"`
	NotBefore    time.Time         `json:"notBefore,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueuedAt"`
}

// HeldSubject returns the subject whose next ACTIVE credential this write creates.
// Only issue and loss writes hold a subject.
func (w PendingWrite) HeldSubject() (subjectID, credentialID string, ok bool) {
	if w.Credential == nil || (w.Kind != WriteIssue && w.Kind != WriteLost) {
		return "", "", false
	}
	return w.Credential.SubjectID, w.Credential.ID, true
}
