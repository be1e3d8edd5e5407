package services

import (
	"context"
	"errors"
	"testing"

	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/models"
)

const (
	day1 = "2026-03-01"
	day2 = "2026-03-02"
)

func loadedMealTracker(t *testing.T, backend *fakeBackend, audit AuditWriter) *MealTracker {
	t.Helper()
	tracker := NewMealTracker(backend, audit)
	if err := tracker.Load(context.Background(), "A", day1); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return tracker
}

func TestMealLoadGroupsServerLogs(t *testing.T) {
	backend := newFakeBackend()
	backend.mealLogs["A|"+day1] = []models.MealLog{
		{LogID: "10", MealType: models.MealBreakfast, Foods: []string{"oats", "banana"}, LoggedFor: day1, IsAvailable: true},
		{LogID: "11", MealType: models.MealDinner, Foods: []string{"rice"}, LoggedFor: day1},
		{LogID: "12", MealType: "brunch", Foods: []string{"toast"}, LoggedFor: day1},
	}

	tracker := loadedMealTracker(t, backend, nil)
	view := tracker.View()

	breakfast := view.Meals[models.MealBreakfast]
	if len(breakfast) != 2 || breakfast[0].ID != "10-0" || breakfast[1].ID != "10-1" {
		t.Fatalf("unexpected breakfast entries %+v", breakfast)
	}
	if !breakfast[0].IsAvailable {
		t.Error("expected server availability flag to be kept")
	}
	if len(view.Meals[models.MealDinner]) != 1 {
		t.Errorf("expected one dinner entry, got %+v", view.Meals[models.MealDinner])
	}
	if _, ok := view.Meals["brunch"]; ok {
		t.Error("unknown meal type must be skipped")
	}
	for _, mt := range models.MealTypes {
		if _, ok := view.Meals[mt]; !ok {
			t.Errorf("expected category %s present", mt)
		}
	}
}

func TestMealEntryRendersBeforeAvailabilityResolves(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	backend.checkFoodHook = func(ctx context.Context, name string) (bool, error) {
		<-release
		return true, nil
	}

	tracker := loadedMealTracker(t, backend, nil)
	entry, err := tracker.Add(models.MealLunch, "  jollof  ")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if entry.Name != "jollof" {
		t.Errorf("expected trimmed name, got %q", entry.Name)
	}

	lunch := tracker.View().Meals[models.MealLunch]
	if len(lunch) != 1 || lunch[0].ID != entry.ID {
		t.Fatalf("expected entry rendered immediately, got %+v", lunch)
	}
	if lunch[0].IsAvailable {
		t.Error("availability must be unknown until the check resolves")
	}

	close(release)
	tracker.Wait()

	lunch = tracker.View().Meals[models.MealLunch]
	if !lunch[0].IsAvailable {
		t.Error("expected availability set once the check resolved")
	}

	if len(backend.submitted) != 1 {
		t.Fatalf("expected one persisted meal, got %d", len(backend.submitted))
	}
	req := backend.submitted[0]
	if req.PatientID != "A" || req.MealType != models.MealLunch || req.LoggedFor != day1 {
		t.Errorf("unexpected request %+v", req)
	}
	if req.IsAvailable {
		t.Error("persisted flag must be the value at submission time")
	}
}

func TestMealPersistFailureKeepsEntry(t *testing.T) {
	backend := newFakeBackend()
	backend.submitErr = &adapters.APIError{StatusCode: 500, Message: "Database unavailable"}
	audit := &memoryAudit{}

	tracker := loadedMealTracker(t, backend, audit)
	entry, err := tracker.Add(models.MealSnack, "groundnuts")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	tracker.Wait()

	view := tracker.View()
	snacks := view.Meals[models.MealSnack]
	if len(snacks) != 1 || snacks[0].ID != entry.ID {
		t.Errorf("entry must not be rolled back, got %+v", snacks)
	}
	if view.SyncError == "" {
		t.Error("expected a sync error")
	}

	var failures int
	for _, e := range audit.all() {
		if e.Action == models.ActionMealPersist && e.Status == models.AuditFailure {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected one failed persist audit entry, got %d", failures)
	}
}

func TestMealCheckFailureLeavesFlagUnset(t *testing.T) {
	backend := newFakeBackend()
	backend.checkErr = errors.New("timeout")
	backend.foods["egg"] = true

	tracker := loadedMealTracker(t, backend, nil)
	if _, err := tracker.Add(models.MealBreakfast, "egg"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	tracker.Wait()

	if e := tracker.View().Meals[models.MealBreakfast][0]; e.IsAvailable {
		t.Error("failed check must leave the flag false")
	}
}

func TestMealDateSwitchClearsEntries(t *testing.T) {
	backend := newFakeBackend()
	backend.foods["yam"] = true
	tracker := loadedMealTracker(t, backend, nil)

	if _, err := tracker.Add(models.MealDinner, "yam"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	tracker.Wait()

	if err := tracker.SetDate(context.Background(), day2); err != nil {
		t.Fatalf("SetDate failed: %v", err)
	}
	view := tracker.View()
	if view.Date != day2 || view.PatientID != "A" {
		t.Errorf("unexpected view header %s/%s", view.PatientID, view.Date)
	}
	for mt, entries := range view.Meals {
		if len(entries) != 0 {
			t.Errorf("expected %s empty after date switch, got %+v", mt, entries)
		}
	}
}

func TestMealStaleLoadIsDiscarded(t *testing.T) {
	backend := newFakeBackend()
	backend.mealLogs["A|"+day2] = []models.MealLog{
		{LogID: "20", MealType: models.MealLunch, Foods: []string{"fufu"}, LoggedFor: day2},
	}

	tracker := NewMealTracker(backend, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	backend.mealLogsHook = func(ctx context.Context, patientID models.ID, date string) ([]models.MealLog, error) {
		if date == day1 {
			close(started)
			<-release
			return []models.MealLog{{LogID: "99", MealType: models.MealLunch, Foods: []string{"stale"}, LoggedFor: day1}}, nil
		}
		return backend.mealLogs["A|"+date], nil
	}

	done := make(chan error, 1)
	go func() { done <- tracker.Load(context.Background(), "A", day1) }()
	<-started

	if err := tracker.Load(context.Background(), "A", day2); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("stale load returned error: %v", err)
	}

	view := tracker.View()
	lunch := view.Meals[models.MealLunch]
	if view.Date != day2 || len(lunch) != 1 || lunch[0].Name != "fufu" {
		t.Errorf("expected only day2 entries, got %s %+v", view.Date, lunch)
	}
}

func TestMealAddValidation(t *testing.T) {
	backend := newFakeBackend()

	t.Run("no patient", func(t *testing.T) {
		tracker := NewMealTracker(backend, nil)
		if _, err := tracker.Add(models.MealLunch, "rice"); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	tracker := loadedMealTracker(t, backend, nil)
	tests := []struct {
		name     string
		mealType models.MealType
		food     string
	}{
		{"blank name", models.MealLunch, "   "},
		{"unknown type", "brunch", "toast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tracker.Add(tt.mealType, tt.food); !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if err := tracker.Load(context.Background(), "A", "03/01/2026"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected invalid date to be rejected, got %v", err)
	}
	if len(backend.submitted) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(backend.submitted))
	}
}

func TestMealRemoveIsLocal(t *testing.T) {
	backend := newFakeBackend()
	tracker := loadedMealTracker(t, backend, nil)

	entry, err := tracker.Add(models.MealBreakfast, "bread")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	tracker.Wait()

	if !tracker.Remove(models.MealBreakfast, entry.ID) {
		t.Fatal("expected entry removed")
	}
	if tracker.Remove(models.MealBreakfast, entry.ID) {
		t.Error("second remove must report nothing removed")
	}
	if n := len(tracker.View().Meals[models.MealBreakfast]); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
	if len(backend.submitted) != 1 {
		t.Errorf("remove must not reach the backend, got %d submissions", len(backend.submitted))
	}
}

func TestMealResetCancelsBackgroundWork(t *testing.T) {
	backend := newFakeBackend()
	backend.checkFoodHook = func(ctx context.Context, name string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}

	tracker := loadedMealTracker(t, backend, nil)
	if _, err := tracker.Add(models.MealLunch, "beans"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	tracker.Reset()
	tracker.Wait()

	view := tracker.View()
	if view.PatientID != "" {
		t.Errorf("expected patient cleared, got %q", view.PatientID)
	}
	if n := len(view.Meals[models.MealLunch]); n != 0 {
		t.Errorf("expected entries dropped, got %d", n)
	}
}
