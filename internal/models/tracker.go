package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of tracked dates
const DateLayout = "2006-01-02"

// MealType is the category a meal entry is grouped under
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// MealTypes lists the fixed meal categories in display order
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}

// ParseMealType validates a meal type string
func ParseMealType(s string) (MealType, error) {
	for _, mt := range MealTypes {
		if string(mt) == s {
			return mt, nil
		}
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// MealEntry is one rendered food item in a meal category
type MealEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsAvailable bool      `json:"isAvailable"`
	Timestamp   time.Time `json:"timestamp"`
}

// MealLog is a meal log record as stored by the backend
type MealLog struct {
	LogID       ID       `json:"log_id"`
	PatientID   ID       `json:"patient_id"`
	MealType    MealType `json:"meal_type"`
	Foods       []string `json:"foods"`
	LoggedFor   string   `json:"logged_for"`
	IsAvailable bool     `json:"is_available"`
}

// MealLogRequest is the body of POST /logs/meal
type MealLogRequest struct {
	PatientID   ID       `json:"patient_id"`
	MealType    MealType `json:"meal_type"`
	Foods       []string `json:"foods"`
	LoggedFor   string   `json:"logged_for"`
	IsAvailable bool     `json:"is_available"`
}

// FoodCheck is the response of GET /nutrition/food/check
type FoodCheck struct {
	Exists bool `json:"exists"`
}

// AdherenceStatus records whether an assigned exercise was done
type AdherenceStatus string

const (
	AdherenceTaken  AdherenceStatus = "taken"
	AdherenceMissed AdherenceStatus = "missed"
)

// Valid reports whether the status is one the backend accepts
func (s AdherenceStatus) Valid() bool {
	return s == AdherenceTaken || s == AdherenceMissed
}

// AssignedExercise is an exercise prescribed to a patient
type AssignedExercise struct {
	PatientExID ID     `json:"patient_ex_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
}

// AdherenceLog is the body of POST /exercise-catalogs/adherence/log
type AdherenceLog struct {
	PatientExID ID              `json:"patient_ex_id"`
	Status      AdherenceStatus `json:"status"`
	PatientID   ID              `json:"patient_id"`
}

// AdherenceSummary is the server-side aggregate for one assigned exercise
type AdherenceSummary struct {
	PatientExID ID  `json:"patient_ex_id"`
	Taken       int `json:"taken"`
	Missed      int `json:"missed"`
}

// ExerciseEntry is an adherence log rendered locally in this session
type ExerciseEntry struct {
	ID        string          `json:"id"`
	Status    AdherenceStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}
