package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"communitycore/internal/blob"
	"communitycore/internal/core"
)

func newHandlerFixture(t *testing.T) (*Handler, *Worker, *core.Service) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	store := blob.NewMemory()
	worker := NewWorker(svc, store, nil)
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})
	return NewHandler(worker, store), worker, svc
}

func TestEnqueueReportOverHTTP(t *testing.T) {
	h, worker, svc := newHandlerFixture(t)
	seedMember(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports",
		strings.NewReader(`{"collection":"members","format":"json"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var record Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Status != StatusQueued || record.Collection != CollectionMembers {
		t.Fatalf("unexpected record: %+v", record)
	}

	final := waitForCompletion(t, worker, record.ID)
	if final.Status != StatusSucceeded {
		t.Fatalf("report failed: %s", final.Error)
	}
}

func TestGetReportByID(t *testing.T) {
	h, worker, svc := newHandlerFixture(t)
	seedMember(t, svc)
	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForCompletion(t, worker, queued.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+queued.ID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var record Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.ID != queued.ID || record.Status != StatusSucceeded {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestGetUnknownReportIs404(t *testing.T) {
	h, _, _ := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/ghost", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListReportsOverHTTP(t *testing.T) {
	h, worker, _ := newHandlerFixture(t)
	if _, err := worker.Enqueue(context.Background(), Request{Collection: CollectionEvents}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Items []Record `json:"items"`
		Count int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Items) != 1 {
		t.Fatalf("unexpected listing: %+v", body)
	}
}

func TestDownloadArtifact(t *testing.T) {
	h, worker, svc := newHandlerFixture(t)
	seedMember(t, svc)
	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers, Format: FormatCSV})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForCompletion(t, worker, queued.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+queued.ID+"/artifact", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,name") {
		t.Fatalf("unexpected artifact body: %q", rec.Body.String())
	}
}

func TestArtifactNotReadyIs409(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	store := blob.NewMemory()
	worker := NewWorker(svc, store, nil)
	// worker never started, so the request stays queued
	h := NewHandler(worker, store)

	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+queued.ID+"/artifact", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBadEnqueuePayloadIs400(t *testing.T) {
	h, _, _ := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports",
		strings.NewReader(`{"collection":"nonsense"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
