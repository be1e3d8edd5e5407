package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/metrics"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
)

// BookedMessage is shown after a successful booking
const BookedMessage = "Appointment booked successfully"

const missingSelectionMessage = "Please select a patient and a time slot."

// Booker commits slot reservations
type Booker interface {
	BookSlot(ctx context.Context, req models.BookingRequest) error
}

// BookingStatus is the outcome of the most recent booking attempt
type BookingStatus struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BookingCoordinator commits bookings and reconciles the open-slot list by
// refetching it afterwards. The slot list is never patched locally: the
// refetch is what reflects bookings made concurrently by other caregivers.
type BookingCoordinator struct {
	booker   Booker
	resolver *CareTeamResolver
	audit    AuditWriter

	mu     sync.Mutex
	status BookingStatus
}

// NewBookingCoordinator creates a coordinator refreshing resolver's slots
func NewBookingCoordinator(booker Booker, resolver *CareTeamResolver, audit AuditWriter) *BookingCoordinator {
	return &BookingCoordinator{
		booker:   booker,
		resolver: resolver,
		audit:    audit,
	}
}

// Book reserves slotID for patientID. On failure the backend's message is
// surfaced and nothing is retried.
func (c *BookingCoordinator) Book(ctx context.Context, patientID, slotID models.ID) error {
	if patientID == "" || slotID == "" {
		c.setStatus(BookingStatus{Error: missingSelectionMessage})
		return fmt.Errorf("%s: %w", missingSelectionMessage, ErrValidation)
	}

	start := time.Now()
	err := c.booker.BookSlot(ctx, models.BookingRequest{SlotID: slotID, PatientID: patientID})
	journal(ctx, c.audit, models.ActionBookSlot, "slot", slotID.String(), start, err)

	if err != nil {
		metrics.Bookings.WithLabelValues("failure").Inc()
		c.setStatus(BookingStatus{Error: adapters.UserMessage(err)})
		log.Warn().Err(err).
			Str("patient_id", patientID.String()).
			Str("slot_id", slotID.String()).
			Msg("Booking failed")
		return fmt.Errorf("failed to book slot: %w", err)
	}

	metrics.Bookings.WithLabelValues("success").Inc()
	c.setStatus(BookingStatus{Message: BookedMessage})
	log.Info().
		Str("patient_id", patientID.String()).
		Str("slot_id", slotID.String()).
		Msg("Slot booked")

	if err := c.resolver.RefreshSlots(ctx); err != nil {
		// Surfaced on the slots stage; the booking itself succeeded
		log.Warn().Err(err).Msg("Failed to refresh slots after booking")
	}
	return nil
}

// BookSelected books the resolver's current patient and slot
func (c *BookingCoordinator) BookSelected(ctx context.Context) error {
	view := c.resolver.Snapshot()
	return c.Book(ctx, view.SelectedPatientID, view.SelectedSlotID)
}

// Status returns the outcome of the last attempt
func (c *BookingCoordinator) Status() BookingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reset clears the last outcome
func (c *BookingCoordinator) Reset() {
	c.setStatus(BookingStatus{})
}

func (c *BookingCoordinator) setStatus(s BookingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}
