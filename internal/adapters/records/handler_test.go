package records

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"communitycore/internal/core"
)

func newTestHandler(t *testing.T) (*Handler, *core.Service) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	return NewHandler(svc), svc
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createMemberHTTP(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/members",
		`{"name":"Ana","contact":"ana@example.org","membership_status":"Active"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create member status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	member, ok := body["member"].(map[string]any)
	if !ok {
		t.Fatalf("missing member payload: %v", body)
	}
	id, _ := member["id"].(string)
	if id == "" {
		t.Fatalf("missing member id: %v", member)
	}
	return id
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCreateAndGetMember(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createMemberHTTP(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/members/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	member := body["member"].(map[string]any)
	if member["name"] != "Ana" {
		t.Fatalf("unexpected member: %v", member)
	}
}

func TestCreateMemberValidationMapsTo400(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/members", `{"name":"Ana"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["field"] != "contact" {
		t.Fatalf("unexpected violation: %v", body)
	}
}

func TestGetMissingMemberMapsTo404(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/members/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["entity"] != "member" || body["id"] != "ghost" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUpdateMember(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createMemberHTTP(t, h)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/members/"+id,
		`{"name":"Ana Silva","contact":"ana@example.org","membership_status":"Inactive"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	member := body["member"].(map[string]any)
	if member["membership_status"] != "Inactive" {
		t.Fatalf("update not applied: %v", member)
	}
}

func TestUpdateMissingMemberWithInvalidPayloadMapsTo404(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPut, "/api/v1/members/ghost",
		`{"name":" ","contact":" ","membership_status":" "}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["entity"] != "member" || body["id"] != "ghost" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestDeleteMemberReturnsWarnings(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createMemberHTTP(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/contributions",
		`{"member_id":"`+id+`","type":"Tithe","amount":50,"description":"weekly tithe"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create contribution status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/members/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "deleted" || body["id"] != id {
		t.Fatalf("unexpected body: %v", body)
	}
	warnings, ok := body["warnings"].([]any)
	if !ok || len(warnings) != 1 {
		t.Fatalf("expected dangling contribution warning: %v", body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contributions", "")
	list := decodeBody(t, rec)
	if list["count"].(float64) != 1 {
		t.Fatalf("contribution must survive member delete: %v", list)
	}
}

func TestCreateContributionUnknownMemberMapsTo404(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/contributions",
		`{"member_id":"ghost","type":"Tithe","amount":50,"description":"weekly tithe"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreatePledgeWithoutCommitmentDateMapsTo400(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createMemberHTTP(t, h)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/contributions",
		`{"member_id":"`+id+`","type":"Pledge","amount":500,"description":"building fund"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["field"] != "commitment_date" {
		t.Fatalf("unexpected violation: %v", body)
	}
}

func TestListEndpointsReturnItemsAndCount(t *testing.T) {
	h, _ := newTestHandler(t)
	createMemberHTTP(t, h)

	for _, tc := range []struct {
		path string
		body string
	}{
		{"/api/v1/events", `{"title":"Service","description":"weekly","date_time":"2026-03-01T10:00:00Z","location":"hall"}`},
		{"/api/v1/donations", `{"donor_id":"visitor","amount":20}`},
		{"/api/v1/prayer-requests", `{"member_id":"anyone","request":"health"}`},
		{"/api/v1/contents", `{"type":"sermon","title":"On Giving","content":"text"}`},
	} {
		rec := doJSON(t, h, http.MethodPost, tc.path, tc.body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s status = %d body=%s", tc.path, rec.Code, rec.Body.String())
		}
		rec = doJSON(t, h, http.MethodGet, tc.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("list %s status = %d", tc.path, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["count"].(float64) != 1 {
			t.Fatalf("list %s unexpected count: %v", tc.path, body)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPatch, "/api/v1/members", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMalformedJSONIs400(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/members", `{"name":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEmptyBodyReportsMissingFields(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/members", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["field"] != "name" {
		t.Fatalf("expected missing name violation: %v", body)
	}
}
