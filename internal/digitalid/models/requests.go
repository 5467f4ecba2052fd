package models

import (
	"strings"
	"time"

	dErrors "touristid/pkg/domain-errors"
)

const (
	MinValidityDays = 1
	MaxValidityDays = 365
	maxReasonLen    = 512
)

type IssueRequest struct {
	SubjectID      string            `json:"touristId"`
	WalletAddress  string            `json:"walletAddress"`
	Personal       PersonalData      `json:"personalData"`
	Booking        BookingData       `json:"bookingData"`
	Emergency      EmergencyContacts `json:"emergencyContacts"`
	ValidityDays   int               `json:"validityDays"`
	CheckoutAt     *time.Time        `json:"checkoutAt,omitempty"`
	InitialConsent *ConsentSettings  `json:"consentSettings,omitempty"`
}

func (r *IssueRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	r.Personal.Name = strings.TrimSpace(r.Personal.Name)
	r.Personal.Nationality = strings.TrimSpace(r.Personal.Nationality)
	r.Emergency.Primary.Name = strings.TrimSpace(r.Emergency.Primary.Name)
	r.Emergency.Primary.Phone = strings.TrimSpace(r.Emergency.Primary.Phone)
}

func (r *IssueRequest) Validate() error {
	switch {
	case r.SubjectID == "":
		return dErrors.New(dErrors.CodeValidation, "touristId is required")
	case r.WalletAddress == "":
		return dErrors.New(dErrors.CodeValidation, "walletAddress is required")
	case r.Personal.Name == "":
		return dErrors.New(dErrors.CodeValidation, "personalData.name is required")
	case r.Personal.Nationality == "":
		return dErrors.New(dErrors.CodeValidation, "personalData.nationality is required")
	case r.Emergency.Primary.Name == "" && r.Emergency.Primary.Phone == "":
		return dErrors.New(dErrors.CodeValidation, "emergencyContacts.primary is required")
	case r.ValidityDays < MinValidityDays || r.ValidityDays > MaxValidityDays:
		return dErrors.New(dErrors.CodeValidation, "validityDays must be between 1 and 365")
	}
	return nil
}

type AccessRequest struct {
	CredentialID string `json:"-"`
	Reason       string `json:"accessReason"`
	Emergency    bool   `json:"emergencyAccess"`
}

func (r *AccessRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *AccessRequest) Validate() error {
	return validateTargetAndReason(r.CredentialID, r.Reason, "accessReason")
}

type UpdateConsentRequest struct {
	CredentialID string          `json:"-"`
	Settings     ConsentSettings `json:"consentSettings"`
}

func (r *UpdateConsentRequest) Validate() error {
	if strings.TrimSpace(r.CredentialID) == "" {
		return dErrors.New(dErrors.CodeValidation, "blockchainId is required")
	}
	return nil
}

type ReportLostRequest struct {
	CredentialID     string `json:"-"`
	Reason           string `json:"reason"`
	NewWalletAddress string `json:"newWalletAddress,omitempty"`
	KioskLocation    string `json:"kioskLocation,omitempty"`
}

func (r *ReportLostRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Reason = strings.TrimSpace(r.Reason)
	r.NewWalletAddress = strings.TrimSpace(r.NewWalletAddress)
	r.KioskLocation = strings.TrimSpace(r.KioskLocation)
}

func (r *ReportLostRequest) Validate() error {
	return validateTargetAndReason(r.CredentialID, r.Reason, "reason")
}

type EmergencyAccessRequest struct {
	CredentialID string `json:"-"`
	Reason       string `json:"reason"`
	// ResponderAddress falls back to the caller's token address when empty.
	ResponderAddress string `json:"responderAddress,omitempty"`
}

func (r *EmergencyAccessRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Reason = strings.TrimSpace(r.Reason)
	r.ResponderAddress = strings.TrimSpace(r.ResponderAddress)
}

func (r *EmergencyAccessRequest) Validate() error {
	return validateTargetAndReason(r.CredentialID, r.Reason, "reason")
}

type RevokeRequest struct {
	CredentialID string `json:"-"`
	Reason       string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RevokeRequest) Validate() error {
	return validateTargetAndReason(r.CredentialID, r.Reason, "reason")
}

func validateTargetAndReason(id, reason, field string) error {
	switch {
	case id == "":
		return dErrors.New(dErrors.CodeValidation, "blockchainId is required")
	case reason == "":
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	case len(reason) > maxReasonLen:
		return dErrors.New(dErrors.CodeValidation, field+" is too long")
	}
	return nil
}
