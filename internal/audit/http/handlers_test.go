package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agrimart/backoffice/internal/audit"
	"github.com/agrimart/backoffice/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.Entry
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Entry, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type stubAuditRBAC struct {
	perms []string
}

func (s stubAuditRBAC) EffectivePermissions(ctx context.Context, actor shared.Actor) ([]string, error) {
	return s.perms, nil
}

func newAuditHandler(service *stubTimelineService, perms []string) *Handler {
	handler := NewHandler(nil, service, stubAuditRBAC{perms: perms})
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	return handler
}

func signedIn(req *http.Request) *http.Request {
	actor := shared.NewActor("a1", "auditor@agrimart.test")
	return req.WithContext(shared.ContextWithActor(req.Context(), actor))
}

func TestTimelineRequiresSignIn(t *testing.T) {
	handler := newAuditHandler(&stubTimelineService{}, []string{"settings.read"})
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestTimelineRequiresPermission(t *testing.T) {
	handler := newAuditHandler(&stubTimelineService{}, nil)
	req := signedIn(httptest.NewRequest(http.MethodGet, "/audit", nil))
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestTimelineReturnsRows(t *testing.T) {
	actor := "auditor@agrimart.test"
	rows := []audit.Entry{{At: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), Actor: &actor, Action: audit.ActionSuspend, Entity: audit.EntityAccount, TargetID: "a9"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	handler := newAuditHandler(service, []string{"settings.read"})
	req := signedIn(httptest.NewRequest(http.MethodGet, "/audit?from=2024-03-01&to=2024-03-15", nil))
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body audit.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Rows) != 1 || body.Rows[0].Action != audit.ActionSuspend {
		t.Fatalf("unexpected rows: %+v", body.Rows)
	}
	if service.lastFilters.From.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("unexpected filters: %+v", service.lastFilters)
	}
	if service.lastFilters.To.Format("2006-01-02") != "2024-03-16" {
		t.Fatalf("expected inclusive end date, got %s", service.lastFilters.To)
	}
}

func TestTimelineRejectsLongRange(t *testing.T) {
	handler := newAuditHandler(&stubTimelineService{}, []string{"settings.read"})
	req := signedIn(httptest.NewRequest(http.MethodGet, "/audit?from=2023-01-01&to=2024-03-15", nil))
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "range") {
		t.Fatalf("expected range error: %s", rr.Body.String())
	}
}

func TestExportCSV(t *testing.T) {
	actor := "auditor@agrimart.test"
	service := &stubTimelineService{exportRows: []audit.Entry{{Actor: &actor, Action: audit.ActionCreate, Entity: audit.EntityRole}}}
	handler := newAuditHandler(service, []string{"settings.read", "settings.export"})
	req := signedIn(httptest.NewRequest(http.MethodGet, "/audit/export.csv?from=2024-03-01&to=2024-03-05", nil))
	rr := httptest.NewRecorder()
	handler.handleExport(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if !strings.Contains(rr.Body.String(), actor) {
		t.Fatalf("expected actor in csv: %s", rr.Body.String())
	}
}

func TestExportRequiresExportPermission(t *testing.T) {
	handler := newAuditHandler(&stubTimelineService{}, []string{"settings.read"})
	req := signedIn(httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
	rr := httptest.NewRecorder()
	handler.handleExport(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
