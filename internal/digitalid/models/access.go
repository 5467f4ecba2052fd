package models

import "time"

// AccessLogEntry records one completed disclosure. Entries are immutable.
type AccessLogEntry struct {
	ID              string         `json:"id"`
	CredentialID    string         `json:"blockchainId"`
	AccessorID      string         `json:"accessorId"`
	AccessorRole    Role           `json:"accessorRole"`
	AccessorAddress string         `json:"accessorAddress,omitempty"`
	Reason          string         `json:"reason"`
	Emergency       bool           `json:"emergencyAccess"`
	LedgerTxRef     string         `json:"transactionHash"`
	Categories      []DataCategory `json:"dataCategories"`
	RequestID       string         `json:"requestId,omitempty"`
	Device          string         `json:"device,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// AccessStats aggregates the access log.
type AccessStats struct {
	Total     int64          `json:"totalAccesses"`
	Emergency int64          `json:"emergencyAccesses"`
	ByRole    map[Role]int64 `json:"byRole"`
	Since     time.Time      `json:"since"`
}
