package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/otcheredev/rehab-portal/internal/metrics"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 4 << 20

// RESTAdapter implements BackendAdapter over the backend's JSON API. It is
// the single request helper every component goes through, so 401 handling
// lives here and nowhere else.
type RESTAdapter struct {
	client  *http.Client
	baseURL string

	mu      sync.RWMutex
	session SessionSink
}

// envelope is the backend's uniform response wrapper
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// NewRESTAdapter creates an adapter for the backend rooted at baseURL,
// e.g. http://localhost:8080/api
func NewRESTAdapter(baseURL string, timeout time.Duration) (*RESTAdapter, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RESTAdapter{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Bind attaches the session used for bearer auth and 401 expiry
func (a *RESTAdapter) Bind(session SessionSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = session
}

func (a *RESTAdapter) sink() SessionSink {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Login authenticates the caregiver
func (a *RESTAdapter) Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error) {
	var result models.LoginResult
	if err := a.do(ctx, "login", http.MethodPost, "/auth/login", nil, creds, false, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "Login response did not include a token"}
	}
	return &result, nil
}

// Register creates a caregiver account
func (a *RESTAdapter) Register(ctx context.Context, reg models.Registration) error {
	return a.do(ctx, "register", http.MethodPost, "/auth/register", nil, reg, false, nil)
}

// ListPatients returns the patients visible to the logged-in caregiver
func (a *RESTAdapter) ListPatients(ctx context.Context) ([]models.Patient, error) {
	var patients []models.Patient
	if err := a.do(ctx, "list_patients", http.MethodGet, "/patients/me", nil, nil, true, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// ListSlots returns every slot of a provider, booked or not
func (a *RESTAdapter) ListSlots(ctx context.Context, providerID models.ID) ([]models.Slot, error) {
	path := "/appointments/slots/" + url.PathEscape(providerID.String())

	var slots []models.Slot
	if err := a.do(ctx, "list_slots", http.MethodGet, path, nil, nil, true, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// BookSlot reserves a slot for a patient
func (a *RESTAdapter) BookSlot(ctx context.Context, req models.BookingRequest) error {
	return a.do(ctx, "book_slot", http.MethodPost, "/appointments/book", nil, req, true, nil)
}

// ListMealLogs returns a patient's meal logs for one date
func (a *RESTAdapter) ListMealLogs(ctx context.Context, patientID models.ID, date string) ([]models.MealLog, error) {
	path := "/logs/meal/" + url.PathEscape(patientID.String())
	query := url.Values{}
	query.Set("date", date)

	var logs []models.MealLog
	if err := a.do(ctx, "list_meal_logs", http.MethodGet, path, query, nil, true, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// SubmitMealLog stores a meal entry
func (a *RESTAdapter) SubmitMealLog(ctx context.Context, req models.MealLogRequest) error {
	return a.do(ctx, "submit_meal_log", http.MethodPost, "/logs/meal", nil, req, true, nil)
}

// CheckFood asks the nutrition catalog whether a food name is known
func (a *RESTAdapter) CheckFood(ctx context.Context, name string) (bool, error) {
	query := url.Values{}
	query.Set("name", name)

	var check models.FoodCheck
	if err := a.do(ctx, "check_food", http.MethodGet, "/nutrition/food/check", query, nil, true, &check); err != nil {
		return false, err
	}
	return check.Exists, nil
}

// ListAssignedExercises returns the exercises prescribed to a patient
func (a *RESTAdapter) ListAssignedExercises(ctx context.Context, patientID models.ID) ([]models.AssignedExercise, error) {
	path := "/exercise-catalogs/patient/" + url.PathEscape(patientID.String())

	var exercises []models.AssignedExercise
	if err := a.do(ctx, "list_exercises", http.MethodGet, path, nil, nil, true, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

// AdherenceSummary returns lifetime taken/missed counts per exercise
func (a *RESTAdapter) AdherenceSummary(ctx context.Context, patientID models.ID) ([]models.AdherenceSummary, error) {
	path := "/exercise-catalogs/adherence/summary/" + url.PathEscape(patientID.String())

	var summary []models.AdherenceSummary
	if err := a.do(ctx, "adherence_summary", http.MethodGet, path, nil, nil, true, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// LogAdherence appends one adherence record
func (a *RESTAdapter) LogAdherence(ctx context.Context, entry models.AdherenceLog) error {
	return a.do(ctx, "log_adherence", http.MethodPost, "/exercise-catalogs/adherence/log", nil, entry, true, nil)
}

// Close closes the adapter
func (a *RESTAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// do executes one backend call. Authenticated calls carry the bearer token
// and expire the session on 401. out receives the envelope's data field, or
// the whole body when the response is not enveloped.
func (a *RESTAdapter) do(ctx context.Context, op, method, path string, query url.Values, body any, auth bool, out any) error {
	reqURL := a.baseURL + path
	if len(query) > 0 {
		reqURL = reqURL + "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	session := a.sink()
	if auth && session != nil {
		if token := session.Token(); token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "transport_error").Inc()
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(op, statusClass(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && auth {
		log.Warn().Str("operation", op).Msg("Backend rejected token, expiring session")
		if session != nil {
			session.Expire(context.WithoutCancel(ctx))
		}
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	var env envelope
	enveloped := len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &env) == nil

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.message()}
	}
	if enveloped && env.Success != nil && !*env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.message()}
	}

	if out == nil {
		return nil
	}

	data := raw
	if enveloped && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		data = env.Data
	} else if enveloped && env.Data != nil {
		// Explicit null data leaves out at its zero value
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func (e envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
