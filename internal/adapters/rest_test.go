package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/otcheredev/rehab-portal/internal/models"
)

type fakeSession struct {
	mu      sync.Mutex
	token   string
	expired int
}

func (f *fakeSession) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) Expire(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.expired++
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*RESTAdapter, *fakeSession) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := NewRESTAdapter(srv.URL+"/api", 5*time.Second)
	if err != nil {
		t.Fatalf("NewRESTAdapter failed: %v", err)
	}
	session := &fakeSession{token: "tok-123"}
	adapter.Bind(session)
	return adapter, session
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRESTAdapterRejectsBadURL(t *testing.T) {
	if _, err := NewRESTAdapter("not a url", time.Second); err == nil {
		t.Fatal("expected error for invalid base URL")
	}
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("login must not carry a bearer token, got %q", got)
			}
			var creds models.Credentials
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds.Email != "care@example.com" {
				t.Errorf("unexpected email %q", creds.Email)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data": map[string]any{
					"token": "new-token",
					"user":  map[string]any{"user_id": 7, "name": "Ama"},
				},
			})
		})

		result, err := adapter.Login(context.Background(), models.Credentials{Email: "care@example.com", Password: "pw"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if result.Token != "new-token" {
			t.Errorf("expected new-token, got %q", result.Token)
		}
		if result.User == nil || result.User.UserID != "7" {
			t.Errorf("expected numeric user id decoded as \"7\", got %+v", result.User)
		}
	})

	t.Run("RejectedCredentialsDoNotExpire", func(t *testing.T) {
		adapter, session := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
		})

		_, err := adapter.Login(context.Background(), models.Credentials{Email: "x", Password: "y"})
		if UserMessage(err) != "Invalid email or password" {
			t.Errorf("expected backend message, got %q (%v)", UserMessage(err), err)
		}
		if session.expired != 0 {
			t.Errorf("unauthenticated call must not expire the session")
		}
	})

	t.Run("SuccessFalseWith200", func(t *testing.T) {
		adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Account not verified"})
		})

		_, err := adapter.Login(context.Background(), models.Credentials{})
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "Account not verified" {
			t.Errorf("expected APIError with message, got %v", err)
		}
	})
}

func TestAuthenticatedCallCarriesBearer(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("expected bearer header, got %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"patient_id": 1, "name": "A", "care_team_links": []any{}},
		}})
	})

	patients, err := adapter.ListPatients(context.Background())
	if err != nil {
		t.Fatalf("ListPatients failed: %v", err)
	}
	if len(patients) != 1 || patients[0].PatientID != "1" {
		t.Errorf("unexpected patients %+v", patients)
	}
}

func TestUnauthorizedExpiresSession(t *testing.T) {
	calls := []struct {
		name string
		call func(a *RESTAdapter) error
	}{
		{"ListPatients", func(a *RESTAdapter) error { _, err := a.ListPatients(context.Background()); return err }},
		{"ListSlots", func(a *RESTAdapter) error { _, err := a.ListSlots(context.Background(), "9"); return err }},
		{"BookSlot", func(a *RESTAdapter) error { return a.BookSlot(context.Background(), models.BookingRequest{SlotID: "1", PatientID: "2"}) }},
		{"ListMealLogs", func(a *RESTAdapter) error {
			_, err := a.ListMealLogs(context.Background(), "2", "2026-10-16")
			return err
		}},
		{"SubmitMealLog", func(a *RESTAdapter) error {
			return a.SubmitMealLog(context.Background(), models.MealLogRequest{PatientID: "2", MealType: models.MealLunch})
		}},
		{"CheckFood", func(a *RESTAdapter) error { _, err := a.CheckFood(context.Background(), "rice"); return err }},
		{"ListAssignedExercises", func(a *RESTAdapter) error {
			_, err := a.ListAssignedExercises(context.Background(), "2")
			return err
		}},
		{"AdherenceSummary", func(a *RESTAdapter) error {
			_, err := a.AdherenceSummary(context.Background(), "2")
			return err
		}},
		{"LogAdherence", func(a *RESTAdapter) error {
			return a.LogAdherence(context.Background(), models.AdherenceLog{PatientExID: "1", Status: models.AdherenceTaken})
		}},
	}

	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			adapter, session := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired"})
			})

			err := tc.call(adapter)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if session.expired != 1 {
				t.Errorf("expected exactly one expiry, got %d", session.expired)
			}
			if session.Token() != "" {
				t.Errorf("expected token cleared")
			}
		})
	}
}

func TestQueryAndPathEncoding(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/logs/meal/p-1":
			if r.URL.Query().Get("date") != "2026-10-16" {
				t.Errorf("expected date query, got %q", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
				{"log_id": 3, "meal_type": "lunch", "foods": []string{"rice", "beans"}},
			}})
		case "/api/nutrition/food/check":
			if r.URL.Query().Get("name") != "brown rice" {
				t.Errorf("expected name query, got %q", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, map[string]any{"exists": true})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	logs, err := adapter.ListMealLogs(context.Background(), "p-1", "2026-10-16")
	if err != nil {
		t.Fatalf("ListMealLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].MealType != models.MealLunch || len(logs[0].Foods) != 2 {
		t.Errorf("unexpected logs %+v", logs)
	}

	exists, err := adapter.CheckFood(context.Background(), "brown rice")
	if err != nil {
		t.Fatalf("CheckFood failed: %v", err)
	}
	if !exists {
		t.Error("expected food to exist")
	}
}

func TestServerErrorSurfacesMessage(t *testing.T) {
	adapter, session := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "Slot already booked"})
	})

	err := adapter.BookSlot(context.Background(), models.BookingRequest{SlotID: "1", PatientID: "2"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "Slot already booked" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if session.expired != 0 {
		t.Error("non-401 errors must not expire the session")
	}
}

func TestUserMessageFallsBackToGeneric(t *testing.T) {
	if got := UserMessage(errors.New("dial tcp: refused")); got != genericFailure {
		t.Errorf("expected generic failure, got %q", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Errorf("expected empty message, got %q", got)
	}
}
