package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/metrics"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// CareTeamSource is what the resolver reads from the backend
type CareTeamSource interface {
	ListPatients(ctx context.Context) ([]models.Patient, error)
	ListSlots(ctx context.Context, providerID models.ID) ([]models.Slot, error)
}

// BookingView is an immutable snapshot of the resolver's three stages
type BookingView struct {
	Loaded             bool              `json:"loaded"`
	Patients           []models.Patient  `json:"patients"`
	SelectedPatientID  models.ID         `json:"selected_patient_id"`
	Providers          []models.Provider `json:"providers"`
	SelectedProviderID models.ID         `json:"selected_provider_id"`
	Slots              []models.Slot     `json:"slots"`
	SelectedSlotID     models.ID         `json:"selected_slot_id"`
	PatientsError      string            `json:"patients_error,omitempty"`
	SlotsError         string            `json:"slots_error,omitempty"`
}

// CareTeamResolver derives patient -> provider -> slot selections. Each
// stage is recomputed from the one above it, and every fetch is tagged with
// a generation so a result for a selection that is no longer current is
// dropped instead of applied.
type CareTeamResolver struct {
	source CareTeamSource

	mu               sync.Mutex
	loaded           bool
	patients         []models.Patient
	selectedPatient  models.ID
	providers        []models.Provider
	selectedProvider models.ID
	slots            []models.Slot
	selectedSlot     models.ID
	patientsErr      string
	slotsErr         string

	patientsGen uint64
	slotsGen    uint64
}

// NewCareTeamResolver creates a resolver reading from source
func NewCareTeamResolver(source CareTeamSource) *CareTeamResolver {
	return &CareTeamResolver{source: source}
}

// DeriveProviders returns the bookable members of a patient's care team
func DeriveProviders(patient *models.Patient) []models.Provider {
	if patient == nil {
		return nil
	}
	users := lo.Map(patient.CareTeamLinks, func(link models.CareTeamLink, _ int) models.Provider {
		return link.User
	})
	return lo.Filter(users, func(p models.Provider, _ int) bool {
		return p.Bookable()
	})
}

// OpenSlots drops every booked slot
func OpenSlots(slots []models.Slot) []models.Slot {
	return lo.Filter(slots, func(s models.Slot, _ int) bool {
		return !s.IsBooked
	})
}

// LoadPatients fetches the caregiver's patients, selects the first one and
// cascades into providers and slots
func (r *CareTeamResolver) LoadPatients(ctx context.Context) error {
	r.mu.Lock()
	r.patientsGen++
	gen := r.patientsGen
	r.mu.Unlock()

	patients, err := r.source.ListPatients(ctx)

	r.mu.Lock()
	if gen != r.patientsGen {
		r.mu.Unlock()
		discardStale("patients", gen)
		return nil
	}
	r.loaded = true
	if err != nil {
		r.patients = nil
		r.patientsErr = adapters.UserMessage(err)
		r.selectPatientLocked("")
		r.mu.Unlock()
		log.Error().Err(err).Msg("Failed to load patients")
		return fmt.Errorf("failed to load patients: %w", err)
	}

	r.patients = patients
	r.patientsErr = ""
	first := models.ID("")
	if len(patients) > 0 {
		first = patients[0].PatientID
	}
	r.selectPatientLocked(first)
	r.mu.Unlock()

	return r.RefreshSlots(ctx)
}

// SelectPatient switches the patient, resets the provider to the new
// patient's first provider and refetches slots
func (r *CareTeamResolver) SelectPatient(ctx context.Context, patientID models.ID) error {
	r.mu.Lock()
	if r.findPatientLocked(patientID) == nil {
		r.mu.Unlock()
		return fmt.Errorf("patient %s: %w", patientID, ErrUnknownSelection)
	}
	r.selectPatientLocked(patientID)
	r.mu.Unlock()

	return r.RefreshSlots(ctx)
}

// SelectProvider switches the provider among the current patient's
// providers and refetches slots
func (r *CareTeamResolver) SelectProvider(ctx context.Context, providerID models.ID) error {
	r.mu.Lock()
	_, ok := lo.Find(r.providers, func(p models.Provider) bool { return p.UserID == providerID })
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("provider %s: %w", providerID, ErrUnknownSelection)
	}
	r.selectedProvider = providerID
	r.invalidateSlotsLocked()
	r.mu.Unlock()

	return r.RefreshSlots(ctx)
}

// SelectSlot picks one of the currently open slots
func (r *CareTeamResolver) SelectSlot(slotID models.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := lo.Find(r.slots, func(s models.Slot) bool { return s.SlotID == slotID })
	if !ok {
		return fmt.Errorf("slot %s: %w", slotID, ErrUnknownSelection)
	}
	r.selectedSlot = slotID
	return nil
}

// RefreshSlots fetches open slots for the selected provider. With no
// provider the slots are cleared without a network call.
func (r *CareTeamResolver) RefreshSlots(ctx context.Context) error {
	r.mu.Lock()
	r.slotsGen++
	gen := r.slotsGen
	providerID := r.selectedProvider
	if providerID == "" {
		r.slots = nil
		r.selectedSlot = ""
		r.slotsErr = ""
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	slots, err := r.source.ListSlots(ctx, providerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Any patient or provider change bumps slotsGen
	if gen != r.slotsGen {
		discardStale("slots", gen)
		return nil
	}
	if err != nil {
		r.slots = nil
		r.selectedSlot = ""
		r.slotsErr = adapters.UserMessage(err)
		log.Error().Err(err).Str("provider_id", providerID.String()).Msg("Failed to load slots")
		return fmt.Errorf("failed to load slots: %w", err)
	}

	r.slots = OpenSlots(slots)
	r.slotsErr = ""
	r.selectedSlot = ""
	if len(r.slots) > 0 {
		r.selectedSlot = r.slots[0].SlotID
	}
	return nil
}

// Snapshot returns a copy of the current state
func (r *CareTeamResolver) Snapshot() BookingView {
	r.mu.Lock()
	defer r.mu.Unlock()

	return BookingView{
		Loaded:             r.loaded,
		Patients:           append([]models.Patient{}, r.patients...),
		SelectedPatientID:  r.selectedPatient,
		Providers:          append([]models.Provider{}, r.providers...),
		SelectedProviderID: r.selectedProvider,
		Slots:              append([]models.Slot{}, r.slots...),
		SelectedSlotID:     r.selectedSlot,
		PatientsError:      r.patientsErr,
		SlotsError:         r.slotsErr,
	}
}

// Loaded reports whether a patient load has completed
func (r *CareTeamResolver) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Reset drops all state; in-flight fetches become stale
func (r *CareTeamResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.patientsGen++
	r.loaded = false
	r.patients = nil
	r.patientsErr = ""
	r.selectPatientLocked("")
}

// selectPatientLocked sets the patient and rederives everything below it
func (r *CareTeamResolver) selectPatientLocked(patientID models.ID) {
	r.selectedPatient = patientID
	r.providers = DeriveProviders(r.findPatientLocked(patientID))
	r.selectedProvider = ""
	if len(r.providers) > 0 {
		r.selectedProvider = r.providers[0].UserID
	}
	r.invalidateSlotsLocked()
}

func (r *CareTeamResolver) invalidateSlotsLocked() {
	r.slotsGen++
	r.slots = nil
	r.selectedSlot = ""
	r.slotsErr = ""
}

func (r *CareTeamResolver) findPatientLocked(patientID models.ID) *models.Patient {
	if patientID == "" {
		return nil
	}
	for i := range r.patients {
		if r.patients[i].PatientID == patientID {
			return &r.patients[i]
		}
	}
	return nil
}

func discardStale(stage string, gen uint64) {
	metrics.StaleResults.WithLabelValues(stage).Inc()
	log.Debug().Str("stage", stage).Uint64("generation", gen).Msg("Discarding stale result")
}
