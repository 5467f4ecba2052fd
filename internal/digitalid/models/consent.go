package models

// Role identifies the kind of party calling the lifecycle manager.
type Role string

const (
	RoleTourist            Role = "tourist"
	RolePolice             Role = "police"
	RoleHotel              Role = "hotel"
	RoleFamily             Role = "family"
	RoleTourismDept        Role = "tourism_dept"
	RoleEmergencyResponder Role = "emergency_responder"
	RoleKiosk              Role = "kiosk"
	RoleAdmin              Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleTourist, RolePolice, RoleHotel, RoleFamily, RoleTourismDept,
		RoleEmergencyResponder, RoleKiosk, RoleAdmin:
		return true
	}
	return false
}

// CanIssue reports whether the role may issue credentials.
func (r Role) CanIssue() bool {
	return r == RoleKiosk || r == RoleAdmin || r == RoleTourismDept
}

// CanUseEmergency gates the emergency path. Consent does not apply there, so
// it is limited to responders, police and admins.
func (r Role) CanUseEmergency() bool {
	return r == RoleEmergencyResponder || r == RolePolice || r == RoleAdmin
}

// ConsentCategory is one of the four grants controlling routine access.
type ConsentCategory string

const (
	ConsentPolice      ConsentCategory = "POLICE_ACCESS"
	ConsentHotel       ConsentCategory = "HOTEL_ACCESS"
	ConsentFamily      ConsentCategory = "FAMILY_ACCESS"
	ConsentTourismDept ConsentCategory = "TOURISM_DEPT_ACCESS"
)

var roleCategories = map[Role]ConsentCategory{
	RolePolice:      ConsentPolice,
	RoleHotel:       ConsentHotel,
	RoleFamily:      ConsentFamily,
	RoleTourismDept: ConsentTourismDept,
}

// CategoryFor returns the consent category gating routine access for role.
// ok is false for roles that have no routine access grant.
func CategoryFor(role Role) (ConsentCategory, bool) {
	c, ok := roleCategories[role]
	return c, ok
}

// ConsentSettings holds the per-category grants. The JSON keys are the
// category names used on the wire and by the ledger.
type ConsentSettings struct {
	Police      bool `json:"POLICE_ACCESS"`
	Hotel       bool `json:"HOTEL_ACCESS"`
	Family      bool `json:"FAMILY_ACCESS"`
	TourismDept bool `json:"TOURISM_DEPT_ACCESS"`
}

// Allows reports whether the category is granted.
func (c ConsentSettings) Allows(category ConsentCategory) bool {
	switch category {
	case ConsentPolice:
		return c.Police
	case ConsentHotel:
		return c.Hotel
	case ConsentFamily:
		return c.Family
	case ConsentTourismDept:
		return c.TourismDept
	}
	return false
}

// Granted lists granted categories in a stable order.
func (c ConsentSettings) Granted() []ConsentCategory {
	out := make([]ConsentCategory, 0, 4)
	for _, cat := range []ConsentCategory{ConsentPolice, ConsentHotel, ConsentFamily, ConsentTourismDept} {
		if c.Allows(cat) {
			out = append(out, cat)
		}
	}
	return out
}
