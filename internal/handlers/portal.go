package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/otcheredev/rehab-portal/internal/services"
	"github.com/otcheredev/rehab-portal/internal/session"
	"github.com/rs/zerolog/log"
)

// AuditReader lists journal entries for a caregiver or a resource
type AuditReader interface {
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]models.AuditLog, error)
	GetByResource(ctx context.Context, resourceType, resourceID string) ([]models.AuditLog, error)
}

// CurrentSession is what the portal views read from the session store
type CurrentSession interface {
	IsAuthenticated() bool
	Snapshot() models.Session
}

type PortalHandler struct {
	portal  *services.Portal
	audit   AuditReader
	session CurrentSession
}

// NewPortalHandler creates the protected portal endpoints. audit may be nil
// when the journal is disabled.
func NewPortalHandler(portal *services.Portal, audit AuditReader, session CurrentSession) *PortalHandler {
	return &PortalHandler{portal: portal, audit: audit, session: session}
}

// expired redirects to the entry view when a backend call ended the
// session. A 401 may surface as ErrUnauthorized or, when the expiry made
// the in-flight result stale, only as a cleared session.
func (h *PortalHandler) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if errors.Is(err, adapters.ErrUnauthorized) || !h.session.IsAuthenticated() {
		http.Redirect(w, r, session.EntryPath, http.StatusSeeOther)
		return true
	}
	return false
}

type bookingResponse struct {
	services.BookingView
	Status services.BookingStatus `json:"status"`
}

func (h *PortalHandler) booking() bookingResponse {
	return bookingResponse{
		BookingView: h.portal.Resolver.Snapshot(),
		Status:      h.portal.Booking.Status(),
	}
}

// Booking returns the appointment booking view, loading patients on first
// use. Stage failures are reported inside the view.
func (h *PortalHandler) Booking(w http.ResponseWriter, r *http.Request) {
	if err := h.portal.EnsureLoaded(r.Context()); h.expired(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, h.booking())
}

type selectPatientRequest struct {
	PatientID models.ID `json:"patient_id"`
}

// SelectPatient switches the booking view's patient
func (h *PortalHandler) SelectPatient(w http.ResponseWriter, r *http.Request) {
	var req selectPatientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.portal.EnsureLoaded(r.Context()); h.expired(w, r, err) {
		return
	}

	err := h.portal.Resolver.SelectPatient(r.Context(), req.PatientID)
	if h.selectionFailed(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, h.booking())
}

type selectProviderRequest struct {
	ProviderID models.ID `json:"provider_id"`
}

// SelectProvider switches the provider among the patient's care team
func (h *PortalHandler) SelectProvider(w http.ResponseWriter, r *http.Request) {
	var req selectProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.portal.Resolver.SelectProvider(r.Context(), req.ProviderID)
	if h.selectionFailed(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, h.booking())
}

type selectSlotRequest struct {
	SlotID models.ID `json:"slot_id"`
}

// SelectSlot picks one of the open slots
func (h *PortalHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var req selectSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.portal.Resolver.SelectSlot(req.SlotID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.booking())
}

// selectionFailed writes a response for selection errors. A failed slot
// fetch is not one: the view already carries the stage message.
func (h *PortalHandler) selectionFailed(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	if h.expired(w, r, err) {
		return true
	}
	if errors.Is(err, services.ErrUnknownSelection) {
		writeError(w, r, err)
		return true
	}
	return false
}

type bookRequest struct {
	PatientID models.ID `json:"patient_id"`
	SlotID    models.ID `json:"slot_id"`
}

// Book reserves a slot. An empty body books the current selection.
func (h *PortalHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	var err error
	if req.PatientID == "" && req.SlotID == "" {
		err = h.portal.Booking.BookSelected(r.Context())
	} else {
		err = h.portal.Booking.Book(r.Context(), req.PatientID, req.SlotID)
	}
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		status := http.StatusBadGateway
		if errors.Is(err, services.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, h.booking())
		return
	}
	writeJSON(w, http.StatusOK, h.booking())
}

// Meals returns the meal view, loading it when the patient or date differs
// from what is rendered
func (h *PortalHandler) Meals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, err := h.portal.ActivePatient(ctx, models.ID(r.URL.Query().Get("patient_id")))
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	view := h.portal.Meals.View()
	date := r.URL.Query().Get("date")
	if date == "" {
		date = view.Date
	}
	if view.PatientID != patientID || view.Date != date {
		if err := h.portal.Meals.Load(ctx, patientID, date); err != nil {
			if errors.Is(err, services.ErrValidation) {
				writeError(w, r, err)
				return
			}
			if h.expired(w, r, err) {
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, h.portal.Meals.View())
}

type setDateRequest struct {
	Date string `json:"date"`
}

// SetMealDate switches the rendered date, discarding the entries shown
func (h *PortalHandler) SetMealDate(w http.ResponseWriter, r *http.Request) {
	var req setDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.portal.Meals.SetDate(r.Context(), req.Date); err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, r, err)
			return
		}
		if h.expired(w, r, err) {
			return
		}
	}
	writeJSON(w, http.StatusOK, h.portal.Meals.View())
}

type addMealRequest struct {
	MealType models.MealType `json:"meal_type"`
	Name     string          `json:"name"`
}

type addMealResponse struct {
	Entry models.MealEntry  `json:"entry"`
	View  services.MealView `json:"view"`
}

// AddMeal renders a meal entry at once; checking and saving it happen in
// the background
func (h *PortalHandler) AddMeal(w http.ResponseWriter, r *http.Request) {
	var req addMealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.portal.Meals.Add(req.MealType, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addMealResponse{Entry: entry, View: h.portal.Meals.View()})
}

// RemoveMeal drops an entry from the rendered list
func (h *PortalHandler) RemoveMeal(w http.ResponseWriter, r *http.Request) {
	mealType, err := models.ParseMealType(chi.URLParam(r, "mealType"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !h.portal.Meals.Remove(mealType, chi.URLParam(r, "entryID")) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, h.portal.Meals.View())
}

// Exercises returns the adherence view for the active patient
func (h *PortalHandler) Exercises(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, err := h.portal.ActivePatient(ctx, models.ID(r.URL.Query().Get("patient_id")))
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if view := h.portal.Exercises.View(); view.PatientID != patientID || view.LoadError != "" {
		if err := h.portal.Exercises.Load(ctx, patientID); h.expired(w, r, err) {
			return
		}
	}
	writeJSON(w, http.StatusOK, h.portal.Exercises.View())
}

type logExerciseRequest struct {
	PatientExID models.ID              `json:"patient_ex_id"`
	Status      models.AdherenceStatus `json:"status"`
}

type logExerciseResponse struct {
	Entry models.ExerciseEntry  `json:"entry"`
	View  services.ExerciseView `json:"view"`
}

// LogExercise records adherence optimistically
func (h *PortalHandler) LogExercise(w http.ResponseWriter, r *http.Request) {
	var req logExerciseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.portal.Exercises.Log(req.PatientExID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, logExerciseResponse{Entry: entry, View: h.portal.Exercises.View()})
}

// RemoveExercise drops an adherence entry from the rendered list
func (h *PortalHandler) RemoveExercise(w http.ResponseWriter, r *http.Request) {
	patientExID := models.ID(chi.URLParam(r, "patientExID"))
	if !h.portal.Exercises.Remove(patientExID, chi.URLParam(r, "entryID")) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, h.portal.Exercises.View())
}

// Audit lists the caregiver's journaled actions, newest first. With
// resource_type and resource_id it lists every action on that resource.
func (h *PortalHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Audit journal is disabled"})
		return
	}

	q := r.URL.Query()
	if resourceType, resourceID := q.Get("resource_type"), q.Get("resource_id"); resourceType != "" || resourceID != "" {
		if resourceType == "" || resourceID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "resource_type and resource_id are both required"})
			return
		}
		logs, err := h.audit.GetByResource(r.Context(), resourceType, resourceID)
		h.writeAudit(w, logs, err)
		return
	}

	user := h.session.Snapshot().User
	if user == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No caregiver profile"})
		return
	}

	limit, ok := queryInt(w, r, "limit", defaultAuditLimit, 1)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0, 0)
	if !ok {
		return
	}

	logs, err := h.audit.GetByUserID(r.Context(), user.UserID.String(), limit, offset)
	h.writeAudit(w, logs, err)
}

func (h *PortalHandler) writeAudit(w http.ResponseWriter, logs []models.AuditLog, err error) {
	if err != nil {
		log.Error().Err(err).Msg("Failed to get audit logs")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to get audit logs"})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

const defaultAuditLimit = 50

// queryInt reads an integer query parameter no smaller than least, writing a 400
// when it is malformed
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, least int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < least {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return n, true
}
