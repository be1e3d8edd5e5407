package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/otcheredev/rehab-portal/internal/models"
)

// BackendAdapter defines every call the portal makes to the rehab backend
type BackendAdapter interface {
	// Auth
	Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error)
	Register(ctx context.Context, reg models.Registration) error

	// Care team and appointments
	ListPatients(ctx context.Context) ([]models.Patient, error)
	ListSlots(ctx context.Context, providerID models.ID) ([]models.Slot, error)
	BookSlot(ctx context.Context, req models.BookingRequest) error

	// Meals
	ListMealLogs(ctx context.Context, patientID models.ID, date string) ([]models.MealLog, error)
	SubmitMealLog(ctx context.Context, req models.MealLogRequest) error
	CheckFood(ctx context.Context, name string) (bool, error)

	// Exercises
	ListAssignedExercises(ctx context.Context, patientID models.ID) ([]models.AssignedExercise, error)
	AdherenceSummary(ctx context.Context, patientID models.ID) ([]models.AdherenceSummary, error)
	LogAdherence(ctx context.Context, log models.AdherenceLog) error

	Close() error
}

// SessionSink is the session the adapter authenticates with. Expire is
// invoked for every 401 on an authenticated call.
type SessionSink interface {
	Token() string
	Expire(ctx context.Context)
}

// ErrUnauthorized is returned after a 401 has expired the session
var ErrUnauthorized = errors.New("session expired")

// APIError carries a non-success response from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// genericFailure is shown for transport and undecodable failures
const genericFailure = "Something went wrong. Please try again."

// UserMessage turns an adapter error into the message shown on a view:
// the backend's own message when it sent one, otherwise a generic failure.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthorized) {
		return "Your session has expired. Please log in again."
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return genericFailure
}
