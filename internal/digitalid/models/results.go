package models

import "time"

type IssueResult struct {
	CredentialID    string           `json:"blockchainId"`
	TransactionHash string           `json:"transactionHash"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	Consent         *ConsentSettings `json:"consentSettings,omitempty"`
}

// AccessResult flattens the disclosed categories next to the credential summary.
type AccessResult struct {
	Credential Summary `json:"digitalId"`
	Disclosure
	AccessCount     int64  `json:"accessCount"`
	Emergency       bool   `json:"emergencyAccess"`
	TransactionHash string `json:"transactionHash"`
}

// EmergencyAccessResult is returned by the responder path. OverrideActive is always true.
type EmergencyAccessResult struct {
	Credential      Summary    `json:"digitalId"`
	EmergencyData   Disclosure `json:"emergencyData"`
	AccessCount     int64      `json:"accessCount"`
	TransactionHash string     `json:"transactionHash"`
	OverrideActive  bool       `json:"overrideActive"`
}

type ConsentResult struct {
	CredentialID    string          `json:"blockchainId"`
	Previous        ConsentSettings `json:"previousConsent"`
	Updated         ConsentSettings `json:"updatedConsent"`
	TransactionHash string          `json:"transactionHash"`
}

type LostResult struct {
	OriginalID      string `json:"originalId"`
	ReplacementID   string `json:"replacementId"`
	TransactionHash string `json:"transactionHash"`
}

type RevokeResult struct {
	CredentialID    string `json:"blockchainId"`
	TransactionHash string `json:"transactionHash"`
}

// ExpireError is one per-record failure of a sweep.
type ExpireError struct {
	CredentialID string `json:"blockchainId"`
	Error        string `json:"error"`
}

type ExpireResult struct {
	ProcessedCount int           `json:"processedCount"`
	ExpiredCount   int           `json:"expiredCount"`
	Errors         []ExpireError `json:"errors"`
}

// Stats is the local-only analytics view.
type Stats struct {
	ByState      map[State]int64     `json:"byState"`
	Access       AccessStats         `json:"access"`
	MostAccessed []Summary           `json:"mostAccessed"`
	Events       map[EventType]int64 `json:"events"`
}
