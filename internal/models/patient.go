package models

import "time"

// Provider roles eligible for appointment booking
const (
	RoleDoctor    = "doctor"
	RoleTherapist = "therapist"
)

// Patient is a read-only copy of a patient visible to the caregiver
type Patient struct {
	PatientID      ID             `json:"patient_id"`
	Name           string         `json:"name"`
	UniqueCode     string         `json:"unique_code,omitempty"`
	DateOfBirth    string         `json:"date_of_birth,omitempty"`
	Gender         string         `json:"gender,omitempty"`
	MedicalHistory string         `json:"medical_history,omitempty"`
	CareTeamLinks  []CareTeamLink `json:"care_team_links"`
}

// CareTeamLink associates a patient with a member of their care team
type CareTeamLink struct {
	User Provider `json:"user"`
}

// Provider is a care-team member. Only doctors and therapists are offered
// for booking.
type Provider struct {
	UserID  ID             `json:"user_id"`
	Role    string         `json:"role"`
	Profile map[string]any `json:"profile,omitempty"`
}

// Bookable reports whether the provider's role can take appointments
func (p Provider) Bookable() bool {
	return p.Role == RoleDoctor || p.Role == RoleTherapist
}

// Slot is a bookable interval belonging to one provider
type Slot struct {
	SlotID    ID        `json:"slot_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsBooked  bool      `json:"is_booked"`
}

// BookingRequest is the body of POST /appointments/book
type BookingRequest struct {
	SlotID    ID `json:"slot_id"`
	PatientID ID `json:"patient_id"`
}
