package services

import (
	"context"
	"errors"
	"testing"

	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/models"
)

func exerciseBackend() *fakeBackend {
	backend := newFakeBackend()
	backend.exercises["A"] = []models.AssignedExercise{
		{PatientExID: "e1", Name: "Squats", Frequency: "daily"},
		{PatientExID: "e2", Name: "Leg raises", Frequency: "weekly"},
	}
	backend.summary["A"] = []models.AdherenceSummary{
		{PatientExID: "e1", Taken: 4, Missed: 1},
	}
	return backend
}

func TestExerciseLoadMergesSummary(t *testing.T) {
	tracker := NewExerciseTracker(exerciseBackend(), nil)
	if err := tracker.Load(context.Background(), "A"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	groups := tracker.View().Groups
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Taken != 4 || groups[0].Missed != 1 {
		t.Errorf("unexpected counts for e1: %+v", groups[0])
	}
	if groups[1].Taken != 0 || groups[1].Missed != 0 {
		t.Errorf("exercise without summary must start at zero: %+v", groups[1])
	}
}

func TestExerciseLogIsOptimistic(t *testing.T) {
	backend := exerciseBackend()
	backend.adherErr = &adapters.APIError{StatusCode: 500, Message: "Write failed"}
	audit := &memoryAudit{}

	tracker := NewExerciseTracker(backend, audit)
	if err := tracker.Load(context.Background(), "A"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	entry, err := tracker.Log("e1", models.AdherenceMissed)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	tracker.Wait()

	view := tracker.View()
	g := view.Groups[0]
	if g.Missed != 2 || len(g.Entries) != 1 || g.Entries[0].ID != entry.ID {
		t.Errorf("entry must stay after a failed write: %+v", g)
	}
	if view.SyncError == "" {
		t.Error("expected sync error")
	}
	if len(backend.adherLogged) != 1 || backend.adherLogged[0].PatientID != "A" {
		t.Errorf("unexpected persisted logs %+v", backend.adherLogged)
	}
	if entries := audit.all(); len(entries) != 1 || entries[0].Action != models.ActionExerciseLog {
		t.Errorf("expected one exercise audit entry, got %+v", entries)
	}
}

func TestExerciseLogValidation(t *testing.T) {
	tracker := NewExerciseTracker(exerciseBackend(), nil)

	if _, err := tracker.Log("e1", models.AdherenceTaken); !errors.Is(err, ErrUnknownSelection) {
		t.Errorf("expected unknown selection before load, got %v", err)
	}
	if err := tracker.Load(context.Background(), "A"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := tracker.Log("e1", "skipped"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := tracker.Log("e9", models.AdherenceTaken); !errors.Is(err, ErrUnknownSelection) {
		t.Errorf("expected unknown exercise, got %v", err)
	}
}

func TestExerciseRemoveRestoresCount(t *testing.T) {
	backend := exerciseBackend()
	tracker := NewExerciseTracker(backend, nil)
	if err := tracker.Load(context.Background(), "A"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	entry, err := tracker.Log("e2", models.AdherenceTaken)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	tracker.Wait()

	if got := tracker.View().Groups[1].Taken; got != 1 {
		t.Fatalf("expected taken=1, got %d", got)
	}
	if !tracker.Remove("e2", entry.ID) {
		t.Fatal("expected entry removed")
	}
	g := tracker.View().Groups[1]
	if g.Taken != 0 || len(g.Entries) != 0 {
		t.Errorf("expected count restored, got %+v", g)
	}
	if len(backend.adherLogged) != 1 {
		t.Errorf("remove must not reach the backend")
	}
}

func TestExercisePatientSwitchClears(t *testing.T) {
	backend := exerciseBackend()
	tracker := NewExerciseTracker(backend, nil)
	if err := tracker.Load(context.Background(), "A"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := tracker.Log("e1", models.AdherenceTaken); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	tracker.Wait()

	if err := tracker.Load(context.Background(), "B"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	view := tracker.View()
	if view.PatientID != "B" || len(view.Groups) != 0 {
		t.Errorf("expected empty view for B, got %+v", view)
	}
}
