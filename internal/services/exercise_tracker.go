package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/metrics"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ExerciseSource is what the exercise tracker reads from and writes to
type ExerciseSource interface {
	ListAssignedExercises(ctx context.Context, patientID models.ID) ([]models.AssignedExercise, error)
	AdherenceSummary(ctx context.Context, patientID models.ID) ([]models.AdherenceSummary, error)
	LogAdherence(ctx context.Context, log models.AdherenceLog) error
}

// ExerciseGroup is one assigned exercise with its lifetime counts and the
// entries logged in this session
type ExerciseGroup struct {
	Exercise models.AssignedExercise `json:"exercise"`
	Taken    int                     `json:"taken"`
	Missed   int                     `json:"missed"`
	Entries  []models.ExerciseEntry  `json:"entries"`
}

// ExerciseView is a snapshot of one patient's adherence
type ExerciseView struct {
	PatientID models.ID       `json:"patient_id"`
	Groups    []ExerciseGroup `json:"groups"`
	LoadError string          `json:"load_error,omitempty"`
	SyncError string          `json:"sync_error,omitempty"`
}

// ExerciseTracker applies the same optimistic protocol as MealTracker to
// adherence logging, keyed by assigned exercise over the patient's
// lifetime instead of by date
type ExerciseTracker struct {
	source ExerciseSource
	audit  AuditWriter
	now    func() time.Time

	mu        sync.Mutex
	patientID models.ID
	groups    []ExerciseGroup
	gen       uint64
	loadErr   string
	syncErr   string

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExerciseTracker creates an empty tracker
func NewExerciseTracker(source ExerciseSource, audit AuditWriter) *ExerciseTracker {
	t := &ExerciseTracker{
		source: source,
		audit:  audit,
		now:    time.Now,
	}
	t.bg, t.cancel = context.WithCancel(context.Background())
	return t
}

// Load discards rendered state and fetches patientID's assigned exercises
// and adherence counts
func (t *ExerciseTracker) Load(ctx context.Context, patientID models.ID) error {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.patientID = patientID
	t.groups = nil
	t.loadErr = ""
	t.syncErr = ""
	t.mu.Unlock()

	if patientID == "" {
		return nil
	}

	exercises, err := t.source.ListAssignedExercises(ctx, patientID)
	var summary []models.AdherenceSummary
	if err == nil {
		summary, err = t.source.AdherenceSummary(ctx, patientID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		discardStale("exercises", gen)
		return nil
	}
	if err != nil {
		t.loadErr = adapters.UserMessage(err)
		log.Error().Err(err).Str("patient_id", patientID.String()).Msg("Failed to load exercises")
		return fmt.Errorf("failed to load exercises: %w", err)
	}

	counts := lo.KeyBy(summary, func(s models.AdherenceSummary) models.ID { return s.PatientExID })
	t.groups = lo.Map(exercises, func(ex models.AssignedExercise, _ int) ExerciseGroup {
		c := counts[ex.PatientExID]
		return ExerciseGroup{Exercise: ex, Taken: c.Taken, Missed: c.Missed}
	})
	return nil
}

// Log renders an adherence entry and bumps the local count at once, then
// persists it in the background without rollback on failure
func (t *ExerciseTracker) Log(patientExID models.ID, status models.AdherenceStatus) (models.ExerciseEntry, error) {
	if !status.Valid() {
		return models.ExerciseEntry{}, fmt.Errorf("unknown adherence status %q: %w", status, ErrValidation)
	}

	t.mu.Lock()
	idx := t.groupIndexLocked(patientExID)
	if t.patientID == "" || idx < 0 {
		t.mu.Unlock()
		return models.ExerciseEntry{}, fmt.Errorf("exercise %s: %w", patientExID, ErrUnknownSelection)
	}
	entry := models.ExerciseEntry{
		ID:        uuid.NewString(),
		Status:    status,
		Timestamp: t.now(),
	}
	group := &t.groups[idx]
	group.Entries = append(group.Entries, entry)
	bumpCount(group, status, 1)
	req := models.AdherenceLog{PatientExID: patientExID, Status: status, PatientID: t.patientID}
	bg := t.bg
	t.wg.Add(1)
	t.mu.Unlock()

	go t.persist(bg, req)

	return entry, nil
}

func (t *ExerciseTracker) persist(ctx context.Context, req models.AdherenceLog) {
	defer t.wg.Done()

	start := time.Now()
	err := t.source.LogAdherence(ctx, req)
	if err == nil {
		return
	}

	metrics.SyncFailures.WithLabelValues("adherence_log").Inc()
	journal(ctx, t.audit, models.ActionExerciseLog, "patient_exercise", req.PatientExID.String(), start, err)
	log.Error().Err(err).
		Str("patient_id", req.PatientID.String()).
		Str("patient_ex_id", req.PatientExID.String()).
		Msg("Failed to persist adherence log")

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.patientID == req.PatientID {
		t.syncErr = "Could not save adherence: " + adapters.UserMessage(err)
	}
}

// Remove drops a session entry from the rendered list only
func (t *ExerciseTracker) Remove(patientExID models.ID, entryID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.groupIndexLocked(patientExID)
	if idx < 0 {
		return false
	}
	group := &t.groups[idx]
	for i, e := range group.Entries {
		if e.ID == entryID {
			group.Entries = append(group.Entries[:i:i], group.Entries[i+1:]...)
			bumpCount(group, e.Status, -1)
			return true
		}
	}
	return false
}

// View returns a copy of the rendered state
func (t *ExerciseTracker) View() ExerciseView {
	t.mu.Lock()
	defer t.mu.Unlock()

	groups := make([]ExerciseGroup, len(t.groups))
	for i, g := range t.groups {
		g.Entries = append([]models.ExerciseEntry{}, g.Entries...)
		groups[i] = g
	}
	return ExerciseView{
		PatientID: t.patientID,
		Groups:    groups,
		LoadError: t.loadErr,
		SyncError: t.syncErr,
	}
}

// Wait blocks until background writes have finished
func (t *ExerciseTracker) Wait() {
	t.wg.Wait()
}

// Reset drops all state and cancels background work
func (t *ExerciseTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancel()
	t.bg, t.cancel = context.WithCancel(context.Background())
	t.gen++
	t.patientID = ""
	t.groups = nil
	t.loadErr = ""
	t.syncErr = ""
}

func (t *ExerciseTracker) groupIndexLocked(patientExID models.ID) int {
	for i := range t.groups {
		if t.groups[i].Exercise.PatientExID == patientExID {
			return i
		}
	}
	return -1
}

func bumpCount(g *ExerciseGroup, status models.AdherenceStatus, delta int) {
	switch status {
	case models.AdherenceTaken:
		g.Taken += delta
	case models.AdherenceMissed:
		g.Missed += delta
	}
}
