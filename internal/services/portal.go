package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/otcheredev/rehab-portal/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Portal owns the feature views of the logged-in caregiver. All of its
// state is derived and is dropped whenever the session changes hands.
type Portal struct {
	Resolver  *CareTeamResolver
	Booking   *BookingCoordinator
	Meals     *MealTracker
	Exercises *ExerciseTracker

	audit AuditWriter
}

// NewPortal wires the views to the backend. audit may be nil.
func NewPortal(backend adapters.BackendAdapter, audit AuditWriter) *Portal {
	resolver := NewCareTeamResolver(backend)
	return &Portal{
		Resolver:  resolver,
		Booking:   NewBookingCoordinator(backend, resolver, audit),
		Meals:     NewMealTracker(backend, audit),
		Exercises: NewExerciseTracker(backend, audit),
		audit:     audit,
	}
}

// HandleSessionEvent resets every view when a session starts or ends so
// nothing derived for one session is shown in another
func (p *Portal) HandleSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventLogin, session.EventLogout, session.EventExpired:
		log.Debug().Str("event", string(ev.Kind)).Msg("Resetting portal views")
		p.Reset()
		p.journalSession(ev)
	}
}

func (p *Portal) journalSession(ev session.Event) {
	if p.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:       models.ActionSessionEnd,
		ResourceType: "session",
		ResourceID:   string(ev.Kind),
		Status:       models.AuditSuccess,
	}
	if ev.Kind == session.EventLogin {
		entry.Action = models.ActionSessionLogin
		if ev.Session.User != nil {
			entry.UserID = ev.Session.User.UserID.String()
		}
	}
	if err := p.audit.Create(context.Background(), entry); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Failed to journal session event")
	}
}

// EnsureLoaded loads the patient list on first use of the booking view
func (p *Portal) EnsureLoaded(ctx context.Context) error {
	if p.Resolver.Loaded() {
		return nil
	}
	return p.Resolver.LoadPatients(ctx)
}

// ActivePatient returns patientID when given, otherwise the patient
// selected in the booking view. An explicit id must belong to the
// caregiver's visible patients.
func (p *Portal) ActivePatient(ctx context.Context, patientID models.ID) (models.ID, error) {
	loadErr := p.EnsureLoaded(ctx)
	if errors.Is(loadErr, adapters.ErrUnauthorized) {
		return "", loadErr
	}

	view := p.Resolver.Snapshot()
	if view.PatientsError != "" {
		if loadErr == nil {
			loadErr = fmt.Errorf("failed to load patients: %s", view.PatientsError)
		}
		return "", loadErr
	}
	if patientID == "" {
		return view.SelectedPatientID, nil
	}
	if !lo.ContainsBy(view.Patients, func(pt models.Patient) bool { return pt.PatientID == patientID }) {
		return "", fmt.Errorf("patient %s: %w", patientID, ErrUnknownSelection)
	}
	return patientID, nil
}

// Reset drops the state of every view
func (p *Portal) Reset() {
	p.Resolver.Reset()
	p.Booking.Reset()
	p.Meals.Reset()
	p.Exercises.Reset()
}

// Wait blocks until background tracker work has settled
func (p *Portal) Wait() {
	p.Meals.Wait()
	p.Exercises.Wait()
}

// UserStamped wraps w so every entry records the current caregiver
func UserStamped(w AuditWriter, user func() *models.User) AuditWriter {
	if w == nil {
		return nil
	}
	return stampedWriter{w: w, user: user}
}

type stampedWriter struct {
	w    AuditWriter
	user func() *models.User
}

func (s stampedWriter) Create(ctx context.Context, entry *models.AuditLog) error {
	if u := s.user(); u != nil && entry.UserID == "" {
		entry.UserID = u.UserID.String()
	}
	return s.w.Create(ctx, entry)
}
