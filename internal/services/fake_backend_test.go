package services

import (
	"context"
	"errors"
	"sync"

	"github.com/otcheredev/rehab-portal/internal/models"
)

// fakeBackend is an in-memory BackendAdapter. Hooks, when set, replace
// the default behavior so tests can block or fail individual calls.
type fakeBackend struct {
	mu sync.Mutex

	patients    []models.Patient
	patientsErr error
	slots       map[models.ID][]models.Slot
	slotsErr    error
	bookErr     error
	mealLogs    map[string][]models.MealLog // "<patient>|<date>"
	foods       map[string]bool
	submitErr   error
	checkErr    error
	exercises   map[models.ID][]models.AssignedExercise
	summary     map[models.ID][]models.AdherenceSummary
	adherErr    error

	slotCalls   []models.ID
	bookCalls   []models.BookingRequest
	mealCalls   []string
	submitted   []models.MealLogRequest
	adherLogged []models.AdherenceLog

	listSlotsHook func(ctx context.Context, providerID models.ID) ([]models.Slot, error)
	checkFoodHook func(ctx context.Context, name string) (bool, error)
	mealLogsHook  func(ctx context.Context, patientID models.ID, date string) ([]models.MealLog, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		slots:     make(map[models.ID][]models.Slot),
		mealLogs:  make(map[string][]models.MealLog),
		foods:     make(map[string]bool),
		exercises: make(map[models.ID][]models.AssignedExercise),
		summary:   make(map[models.ID][]models.AdherenceSummary),
	}
}

func (f *fakeBackend) Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error) {
	return &models.LoginResult{Token: "tok"}, nil
}

func (f *fakeBackend) Register(ctx context.Context, reg models.Registration) error {
	return nil
}

func (f *fakeBackend) ListPatients(ctx context.Context) ([]models.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patientsErr != nil {
		return nil, f.patientsErr
	}
	return append([]models.Patient{}, f.patients...), nil
}

func (f *fakeBackend) ListSlots(ctx context.Context, providerID models.ID) ([]models.Slot, error) {
	f.mu.Lock()
	f.slotCalls = append(f.slotCalls, providerID)
	hook := f.listSlotsHook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, providerID)
	}
	return f.storedSlots(providerID)
}

func (f *fakeBackend) storedSlots(providerID models.ID) ([]models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return append([]models.Slot{}, f.slots[providerID]...), nil
}

func (f *fakeBackend) BookSlot(ctx context.Context, req models.BookingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls = append(f.bookCalls, req)
	if f.bookErr != nil {
		return f.bookErr
	}
	for provider, slots := range f.slots {
		for i := range slots {
			if slots[i].SlotID == req.SlotID {
				if slots[i].IsBooked {
					return errors.New("slot already booked")
				}
				f.slots[provider][i].IsBooked = true
				return nil
			}
		}
	}
	return errors.New("slot not found")
}

func (f *fakeBackend) ListMealLogs(ctx context.Context, patientID models.ID, date string) ([]models.MealLog, error) {
	f.mu.Lock()
	f.mealCalls = append(f.mealCalls, string(patientID)+"|"+date)
	hook := f.mealLogsHook
	logs := append([]models.MealLog{}, f.mealLogs[string(patientID)+"|"+date]...)
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, patientID, date)
	}
	return logs, nil
}

func (f *fakeBackend) SubmitMealLog(ctx context.Context, req models.MealLogRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return f.submitErr
}

func (f *fakeBackend) CheckFood(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	hook := f.checkFoodHook
	exists, err := f.foods[name], f.checkErr
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, name)
	}
	return exists, err
}

func (f *fakeBackend) ListAssignedExercises(ctx context.Context, patientID models.ID) ([]models.AssignedExercise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AssignedExercise{}, f.exercises[patientID]...), nil
}

func (f *fakeBackend) AdherenceSummary(ctx context.Context, patientID models.ID) ([]models.AdherenceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AdherenceSummary{}, f.summary[patientID]...), nil
}

func (f *fakeBackend) LogAdherence(ctx context.Context, entry models.AdherenceLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adherLogged = append(f.adherLogged, entry)
	return f.adherErr
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) slotCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slotCalls)
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memoryAudit) Create(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryAudit) all() []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditLog{}, m.entries...)
}

func patient(id, name string, providers ...models.Provider) models.Patient {
	p := models.Patient{PatientID: models.ID(id), Name: name}
	for _, prov := range providers {
		p.CareTeamLinks = append(p.CareTeamLinks, models.CareTeamLink{User: prov})
	}
	return p
}

func provider(id, role string) models.Provider {
	return models.Provider{UserID: models.ID(id), Role: role}
}

func slot(id string, booked bool) models.Slot {
	return models.Slot{SlotID: models.ID(id), IsBooked: booked}
}
