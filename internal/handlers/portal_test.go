package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/otcheredev/rehab-portal/internal/models"
)

type fakeAuditReader struct {
	userID        string
	limit, offset int
	resource      string
	err           error
}

func (f *fakeAuditReader) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]models.AuditLog, error) {
	f.userID, f.limit, f.offset = userID, limit, offset
	return []models.AuditLog{{UserID: userID, Action: models.ActionBookSlot}}, f.err
}

func (f *fakeAuditReader) GetByResource(ctx context.Context, resourceType, resourceID string) ([]models.AuditLog, error) {
	f.resource = resourceType + "/" + resourceID
	return []models.AuditLog{{ResourceType: resourceType, ResourceID: resourceID}}, f.err
}

type staticSession struct {
	session models.Session
}

func (s staticSession) IsAuthenticated() bool { return s.session.Token != "" }
func (s staticSession) Snapshot() models.Session { return s.session }

func serveAudit(h *PortalHandler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Audit(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAudit(t *testing.T) {
	signedIn := staticSession{models.Session{Token: "tok", User: &models.User{UserID: "c-1"}}}

	t.Run("disabled journal", func(t *testing.T) {
		h := NewPortalHandler(nil, nil, signedIn)
		if rec := serveAudit(h, "/portal/audit"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("caregiver entries with paging", func(t *testing.T) {
		reader := &fakeAuditReader{}
		h := NewPortalHandler(nil, reader, signedIn)

		rec := serveAudit(h, "/portal/audit")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if reader.userID != "c-1" || reader.limit != defaultAuditLimit || reader.offset != 0 {
			t.Errorf("unexpected query user=%q limit=%d offset=%d", reader.userID, reader.limit, reader.offset)
		}

		serveAudit(h, "/portal/audit?limit=10&offset=20")
		if reader.limit != 10 || reader.offset != 20 {
			t.Errorf("expected limit 10 offset 20, got %d %d", reader.limit, reader.offset)
		}
	})

	t.Run("invalid paging", func(t *testing.T) {
		for _, q := range []string{"limit=abc", "limit=-1", "limit=0", "offset=-5", "offset=x"} {
			reader := &fakeAuditReader{}
			h := NewPortalHandler(nil, reader, signedIn)
			if rec := serveAudit(h, "/portal/audit?"+q); rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", q, rec.Code)
			}
			if reader.userID != "" {
				t.Errorf("%s: journal must not be queried", q)
			}
		}
	})

	t.Run("entries for one resource", func(t *testing.T) {
		reader := &fakeAuditReader{}
		h := NewPortalHandler(nil, reader, signedIn)

		rec := serveAudit(h, "/portal/audit?resource_type=slot&resource_id=s-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		logs := decode[[]models.AuditLog](t, rec)
		if reader.resource != "slot/s-1" || len(logs) != 1 || logs[0].ResourceID != "s-1" {
			t.Errorf("unexpected resource query %q -> %+v", reader.resource, logs)
		}

		if rec := serveAudit(h, "/portal/audit?resource_type=slot"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without resource_id, got %d", rec.Code)
		}
	})

	t.Run("journal failure", func(t *testing.T) {
		h := NewPortalHandler(nil, &fakeAuditReader{err: errors.New("connection refused")}, signedIn)
		if rec := serveAudit(h, "/portal/audit"); rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}
