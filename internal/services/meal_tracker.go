package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/metrics"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
)

// MealSource is what the meal tracker reads from and writes to
type MealSource interface {
	ListMealLogs(ctx context.Context, patientID models.ID, date string) ([]models.MealLog, error)
	SubmitMealLog(ctx context.Context, req models.MealLogRequest) error
	CheckFood(ctx context.Context, name string) (bool, error)
}

// MealView is a snapshot of one patient's meals for one date
type MealView struct {
	PatientID models.ID                             `json:"patient_id"`
	Date      string                                `json:"date"`
	Meals     map[models.MealType][]models.MealEntry `json:"meals"`
	Loading   bool                                  `json:"loading"`
	LoadError string                                `json:"load_error,omitempty"`
	SyncError string                                `json:"sync_error,omitempty"`
}

// MealTracker keeps the rendered meal entries for the active patient and
// date. Adding an entry is a two-phase write: the entry is shown at once,
// then checked against the food catalog and persisted in the background.
// A failed background write is logged and left in place; the local view
// and the backend may differ until the next load.
type MealTracker struct {
	source MealSource
	audit  AuditWriter
	now    func() time.Time

	mu        sync.Mutex
	patientID models.ID
	date      string
	meals     map[models.MealType][]models.MealEntry
	gen       uint64
	loading   bool
	loadErr   string
	syncErr   string

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMealTracker creates a tracker on today's date
func NewMealTracker(source MealSource, audit AuditWriter) *MealTracker {
	t := &MealTracker{
		source: source,
		audit:  audit,
		now:    time.Now,
		meals:  emptyMeals(),
	}
	t.date = t.now().Format(models.DateLayout)
	t.bg, t.cancel = context.WithCancel(context.Background())
	return t
}

func emptyMeals() map[models.MealType][]models.MealEntry {
	meals := make(map[models.MealType][]models.MealEntry, len(models.MealTypes))
	for _, mt := range models.MealTypes {
		meals[mt] = nil
	}
	return meals
}

// Load discards the rendered entries and fetches patientID's logs for
// date. Results for a patient or date that is no longer active are dropped.
func (t *MealTracker) Load(ctx context.Context, patientID models.ID, date string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, ErrValidation)
	}

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.patientID = patientID
	t.date = date
	t.meals = emptyMeals()
	t.loadErr = ""
	t.syncErr = ""
	t.loading = patientID != ""
	t.mu.Unlock()

	if patientID == "" {
		return nil
	}

	logs, err := t.source.ListMealLogs(ctx, patientID, date)

	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		discardStale("meals", gen)
		return nil
	}
	t.loading = false
	if err != nil {
		t.loadErr = adapters.UserMessage(err)
		log.Error().Err(err).
			Str("patient_id", patientID.String()).
			Str("date", date).
			Msg("Failed to load meal logs")
		return fmt.Errorf("failed to load meal logs: %w", err)
	}

	loaded := groupMealLogs(logs, t.now())
	for mt, entries := range loaded {
		// Entries added while the load was in flight stay after the loaded ones
		t.meals[mt] = append(entries, t.meals[mt]...)
	}
	return nil
}

// SetDate switches the active date for the current patient
func (t *MealTracker) SetDate(ctx context.Context, date string) error {
	t.mu.Lock()
	patientID := t.patientID
	t.mu.Unlock()
	return t.Load(ctx, patientID, date)
}

// SetPatient switches the active patient on the current date
func (t *MealTracker) SetPatient(ctx context.Context, patientID models.ID) error {
	t.mu.Lock()
	date := t.date
	t.mu.Unlock()
	return t.Load(ctx, patientID, date)
}

// groupMealLogs flattens server logs into per-type entries. Server entries
// are identified by "<log_id>-<index>"; local ids are never reconciled with
// them.
func groupMealLogs(logs []models.MealLog, now time.Time) map[models.MealType][]models.MealEntry {
	grouped := make(map[models.MealType][]models.MealEntry)
	for _, l := range logs {
		if _, err := models.ParseMealType(string(l.MealType)); err != nil {
			log.Warn().Str("meal_type", string(l.MealType)).Msg("Skipping meal log with unknown type")
			continue
		}
		ts := now
		if d, err := time.Parse(models.DateLayout, l.LoggedFor); err == nil {
			ts = d
		}
		for i, food := range l.Foods {
			grouped[l.MealType] = append(grouped[l.MealType], models.MealEntry{
				ID:          fmt.Sprintf("%s-%d", l.LogID, i),
				Name:        food,
				IsAvailable: l.IsAvailable,
				Timestamp:   ts,
			})
		}
	}
	return grouped
}

// Add renders a new entry immediately and starts the availability check
// and the persist in the background. It never waits on the network.
func (t *MealTracker) Add(mealType models.MealType, name string) (models.MealEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MealEntry{}, fmt.Errorf("food name is required: %w", ErrValidation)
	}
	if _, err := models.ParseMealType(string(mealType)); err != nil {
		return models.MealEntry{}, fmt.Errorf("%v: %w", err, ErrValidation)
	}

	t.mu.Lock()
	if t.patientID == "" {
		t.mu.Unlock()
		return models.MealEntry{}, fmt.Errorf("no patient selected: %w", ErrValidation)
	}
	entry := models.MealEntry{
		ID:          uuid.NewString(),
		Name:        name,
		IsAvailable: false,
		Timestamp:   t.now(),
	}
	t.meals[mealType] = append(t.meals[mealType], entry)
	gen := t.gen
	req := models.MealLogRequest{
		PatientID:   t.patientID,
		MealType:    mealType,
		Foods:       []string{name},
		LoggedFor:   t.date,
		IsAvailable: entry.IsAvailable,
	}
	bg := t.bg
	t.wg.Add(2)
	t.mu.Unlock()

	go t.checkAvailability(bg, gen, mealType, entry.ID, name)
	go t.persist(bg, req)

	return entry, nil
}

func (t *MealTracker) checkAvailability(ctx context.Context, gen uint64, mealType models.MealType, entryID, name string) {
	defer t.wg.Done()

	start := time.Now()
	exists, err := t.source.CheckFood(ctx, name)
	if err != nil {
		metrics.SyncFailures.WithLabelValues("food_check").Inc()
		journal(ctx, t.audit, models.ActionFoodCheck, "food", name, start, err)
		log.Warn().Err(err).Str("food", name).Msg("Food availability check failed")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		return
	}
	entries := t.meals[mealType]
	for i := range entries {
		if entries[i].ID == entryID {
			entries[i].IsAvailable = exists
			return
		}
	}
	// Removed locally before the check resolved
}

func (t *MealTracker) persist(ctx context.Context, req models.MealLogRequest) {
	defer t.wg.Done()

	start := time.Now()
	err := t.source.SubmitMealLog(ctx, req)
	if err == nil {
		return
	}

	metrics.SyncFailures.WithLabelValues("meal_persist").Inc()
	journal(ctx, t.audit, models.ActionMealPersist, "patient", req.PatientID.String(), start, err)
	log.Error().Err(err).
		Str("patient_id", req.PatientID.String()).
		Str("meal_type", string(req.MealType)).
		Str("date", req.LoggedFor).
		Msg("Failed to persist meal entry")

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.patientID == req.PatientID && t.date == req.LoggedFor {
		t.syncErr = fmt.Sprintf("Could not save %q: %s", strings.Join(req.Foods, ", "), adapters.UserMessage(err))
	}
}

// Remove deletes an entry from the rendered list only. Nothing is sent to
// the backend.
func (t *MealTracker) Remove(mealType models.MealType, entryID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.meals[mealType]
	for i := range entries {
		if entries[i].ID == entryID {
			t.meals[mealType] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// View returns a copy of the rendered state
func (t *MealTracker) View() MealView {
	t.mu.Lock()
	defer t.mu.Unlock()

	meals := make(map[models.MealType][]models.MealEntry, len(t.meals))
	for mt, entries := range t.meals {
		meals[mt] = append([]models.MealEntry{}, entries...)
	}
	return MealView{
		PatientID: t.patientID,
		Date:      t.date,
		Meals:     meals,
		Loading:   t.loading,
		LoadError: t.loadErr,
		SyncError: t.syncErr,
	}
}

// Wait blocks until background checks and writes have finished
func (t *MealTracker) Wait() {
	t.wg.Wait()
}

// Reset drops all state and cancels background work
func (t *MealTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancel()
	t.bg, t.cancel = context.WithCancel(context.Background())
	t.gen++
	t.patientID = ""
	t.date = t.now().Format(models.DateLayout)
	t.meals = emptyMeals()
	t.loading = false
	t.loadErr = ""
	t.syncErr = ""
}
