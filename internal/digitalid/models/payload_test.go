package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisclose(t *testing.T) {
	p := ProtectedPayload{
		Personal:  PersonalData{Name: "Ana", Nationality: "PT", BloodGroup: "O-", MedicalConditions: "asthma"},
		Booking:   BookingData{Hotel: "Miramar"},
		Emergency: EmergencyContacts{Primary: Contact{Name: "Rui", Phone: "+351"}},
	}

	hotel := Disclose(p, RoutineCategories(RoleHotel))
	require.NotNil(t, hotel.Personal)
	assert.Empty(t, hotel.Personal.BloodGroup)
	assert.NotNil(t, hotel.Booking)
	assert.Nil(t, hotel.Emergency)

	emergency := Disclose(p, EmergencyCategories())
	require.NotNil(t, emergency.Personal)
	assert.Equal(t, "asthma", emergency.Personal.MedicalConditions)
	assert.NotNil(t, emergency.Emergency)
	assert.Len(t, emergency.Categories, 4)
}

func TestConsentCategories(t *testing.T) {
	c := ConsentSettings{Police: true, Family: true}
	assert.Equal(t, []ConsentCategory{ConsentPolice, ConsentFamily}, c.Granted())

	cat, ok := CategoryFor(RoleHotel)
	assert.True(t, ok)
	assert.False(t, c.Allows(cat))

	_, ok = CategoryFor(RoleEmergencyResponder)
	assert.False(t, ok)
}
