package models

import (
	"encoding/json"
	"strings"
)

// DataCategory names a slice of the protected payload that can be disclosed.
type DataCategory string

const (
	DataPersonal          DataCategory = "personal"
	DataBooking           DataCategory = "booking"
	DataEmergencyContacts DataCategory = "emergency_contacts"
	DataMedical           DataCategory = "medical"
)

type PersonalData struct {
	Name              string `json:"name"`
	Nationality       string `json:"nationality"`
	PassportNumber    string `json:"passportNumber,omitempty"`
	DateOfBirth       string `json:"dateOfBirth,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Email             string `json:"email,omitempty"`
	BloodGroup        string `json:"bloodGroup,omitempty"`
	MedicalConditions string `json:"medicalConditions,omitempty"`
}

// WithoutMedical returns a copy with the medical fields cleared.
func (p PersonalData) WithoutMedical() PersonalData {
	p.BloodGroup = ""
	p.MedicalConditions = ""
	return p
}

type BookingData struct {
	Hotel     string   `json:"hotel,omitempty"`
	CheckIn   string   `json:"checkIn,omitempty"`
	CheckOut  string   `json:"checkOut,omitempty"`
	Itinerary []string `json:"itinerary,omitempty"`
}

type Contact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation,omitempty"`
}

type EmergencyContacts struct {
	Primary   Contact  `json:"primary"`
	Secondary *Contact `json:"secondary,omitempty"`
}

// ProtectedPayload is the plaintext sealed into the ledger record.
// It never reaches the local credential store.
type ProtectedPayload struct {
	Personal  PersonalData      `json:"personalData"`
	Booking   BookingData       `json:"bookingData"`
	Emergency EmergencyContacts `json:"emergencyContacts"`
}

// Marshal encodes the payload for hashing and sealing.
func (p ProtectedPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalPayload(b []byte) (ProtectedPayload, error) {
	var p ProtectedPayload
	err := json.Unmarshal(b, &p)
	return p, err
}

// Disclosure is the data a ledger released for one access.
// Nil sections were not disclosed.
type Disclosure struct {
	Personal   *PersonalData      `json:"personalData,omitempty"`
	Booking    *BookingData       `json:"bookingData,omitempty"`
	Emergency  *EmergencyContacts `json:"emergencyContacts,omitempty"`
	Categories []DataCategory     `json:"accessLevels"`
}

// Disclose cuts the payload down to the given categories.
// Medical fields stay hidden unless DataMedical is among them.
func Disclose(p ProtectedPayload, categories []DataCategory) Disclosure {
	d := Disclosure{Categories: append([]DataCategory(nil), categories...)}
	medical := false
	for _, c := range categories {
		if c == DataMedical {
			medical = true
		}
	}
	for _, c := range categories {
		switch c {
		case DataPersonal:
			personal := p.Personal
			if !medical {
				personal = personal.WithoutMedical()
			}
			d.Personal = &personal
		case DataBooking:
			booking := p.Booking
			d.Booking = &booking
		case DataEmergencyContacts:
			contacts := p.Emergency
			d.Emergency = &contacts
		}
	}
	return d
}

// RoutineCategories is what a consented role sees without the emergency path.
func RoutineCategories(role Role) []DataCategory {
	switch role {
	case RolePolice:
		return []DataCategory{DataPersonal, DataBooking, DataEmergencyContacts}
	case RoleHotel:
		return []DataCategory{DataPersonal, DataBooking}
	case RoleFamily:
		return []DataCategory{DataPersonal, DataEmergencyContacts}
	case RoleTourismDept:
		return []DataCategory{DataPersonal, DataBooking}
	case RoleTourist:
		return []DataCategory{DataPersonal, DataBooking, DataEmergencyContacts}
	}
	return nil
}

// EmergencyCategories is the bundle released on the emergency path.
func EmergencyCategories() []DataCategory {
	return []DataCategory{DataPersonal, DataBooking, DataEmergencyContacts, DataMedical}
}

// CategoryNames renders categories for storage.
func CategoryNames(cs []DataCategory) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

func ParseCategories(names []string) []DataCategory {
	out := make([]DataCategory, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, DataCategory(n))
		}
	}
	return out
}
