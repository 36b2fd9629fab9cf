package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"communitycore/internal/blob"
	"communitycore/internal/core"
	"communitycore/pkg/domain"
)

func newTestWorker(t *testing.T) (*Worker, *core.Service, blob.Store, *MemoryAuditLog) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	store := blob.NewMemory()
	audit := &MemoryAuditLog{}
	worker := NewWorker(svc, store, audit)
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})
	return worker, svc, store, audit
}

func seedMember(t *testing.T, svc *core.Service) domain.Member {
	t.Helper()
	member, _, err := svc.CreateMember(context.Background(), core.MemberInput{
		Name: "Ana", Contact: "ana@example.org", MembershipStatus: "Active",
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

func waitForCompletion(t *testing.T, worker *Worker, id string) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := worker.Get(id)
		if !ok {
			t.Fatalf("report %s disappeared", id)
		}
		if record.Status == StatusSucceeded || record.Status == StatusFailed {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("report %s did not complete", id)
	return Record{}
}

func TestJSONReportLifecycle(t *testing.T) {
	worker, svc, store, audit := newTestWorker(t)
	seedMember(t, svc)

	queued, err := worker.Enqueue(context.Background(), Request{
		Collection:  CollectionMembers,
		Format:      FormatJSON,
		RequestedBy: "admin",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued {
		t.Fatalf("queued status = %s", queued.Status)
	}

	record := waitForCompletion(t, worker, queued.ID)
	if record.Status != StatusSucceeded {
		t.Fatalf("report failed: %s", record.Error)
	}
	if record.Artifact == nil {
		t.Fatalf("missing artifact: %+v", record)
	}
	wantKey := "reports/members/" + record.ID + ".json"
	if record.Artifact.Key != wantKey {
		t.Fatalf("artifact key = %q, want %q", record.Artifact.Key, wantKey)
	}

	_, body, err := store.Get(context.Background(), record.Artifact.Key)
	if err != nil {
		t.Fatalf("artifact payload: %v", err)
	}
	defer body.Close()
	var members []domain.Member
	if err := json.NewDecoder(body).Decode(&members); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Ana" {
		t.Fatalf("unexpected payload: %+v", members)
	}

	entries := audit.Entries()
	if len(entries) == 0 {
		t.Fatalf("expected audit entries")
	}
	last := entries[len(entries)-1]
	if last.Status != StatusSucceeded || last.Collection != CollectionMembers {
		t.Fatalf("unexpected final audit entry: %+v", last)
	}
}

func TestCSVReportEncodesRows(t *testing.T) {
	worker, svc, store, _ := newTestWorker(t)
	member := seedMember(t, svc)
	if _, _, err := svc.CreateContribution(context.Background(), core.ContributionInput{
		MemberID: member.ID, Type: "Tithe", Amount: 50, Description: "weekly tithe",
	}); err != nil {
		t.Fatalf("seed contribution: %v", err)
	}

	queued, err := worker.Enqueue(context.Background(), Request{
		Collection: CollectionContributions,
		Format:     FormatCSV,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForCompletion(t, worker, queued.ID)
	if record.Status != StatusSucceeded {
		t.Fatalf("report failed: %s", record.Error)
	}

	info, body, err := store.Get(context.Background(), record.Artifact.Key)
	if err != nil {
		t.Fatalf("artifact payload: %v", err)
	}
	defer body.Close()
	if info.ContentType != "text/csv" {
		t.Fatalf("content type = %q", info.ContentType)
	}
	rows, err := csv.NewReader(body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "member_id" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != member.ID || rows[1][2] != "Tithe" || rows[1][3] != "50.00" {
		t.Fatalf("unexpected row: %v", rows[1])
	}
}

func TestEnqueueRejectsUnknownCollection(t *testing.T) {
	worker, _, _, _ := newTestWorker(t)
	if _, err := worker.Enqueue(context.Background(), Request{Collection: "nonsense"}); err == nil {
		t.Fatalf("expected unknown collection error")
	}
}

func TestEnqueueRejectsUnknownFormat(t *testing.T) {
	worker, _, _, _ := newTestWorker(t)
	if _, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers, Format: "xlsx"}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestEnqueueDefaultsToJSON(t *testing.T) {
	worker, _, _, _ := newTestWorker(t)
	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionEvents})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Format != FormatJSON {
		t.Fatalf("default format = %s", queued.Format)
	}
	waitForCompletion(t, worker, queued.ID)
}

func TestListReturnsEnqueueOrder(t *testing.T) {
	worker, _, _, _ := newTestWorker(t)
	var ids []string
	for _, collection := range []string{CollectionMembers, CollectionEvents, CollectionContents} {
		queued, err := worker.Enqueue(context.Background(), Request{Collection: collection})
		if err != nil {
			t.Fatalf("enqueue %s: %v", collection, err)
		}
		ids = append(ids, queued.ID)
	}
	records := worker.List()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, record := range records {
		if record.ID != ids[i] {
			t.Fatalf("record %d out of order: %s != %s", i, record.ID, ids[i])
		}
	}
}

func TestWorkerWithoutBlobStoreStillCompletes(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	worker := NewWorker(svc, nil, nil)
	worker.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	}()

	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForCompletion(t, worker, queued.ID)
	if record.Status != StatusSucceeded {
		t.Fatalf("report failed: %s", record.Error)
	}
	if record.Artifact == nil {
		t.Fatalf("expected artifact accounting without a store")
	}
	if record.Artifact.URL != "" {
		t.Fatalf("no store, no url: %+v", record.Artifact)
	}
}

func TestStopWaitsForLoop(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	worker := NewWorker(svc, blob.NewMemory(), nil)
	worker.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := worker.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRecordCopyIsDetached(t *testing.T) {
	worker, svc, _, _ := newTestWorker(t)
	seedMember(t, svc)
	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForCompletion(t, worker, queued.ID)
	record.Artifact.Key = "tampered"
	fresh, _ := worker.Get(queued.ID)
	if fresh.Artifact.Key == "tampered" {
		t.Fatalf("Get must return detached copies")
	}
}

func TestSlogAuditLogEmitsStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	audit := NewSlogAuditLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	audit.Record(context.Background(), AuditEntry{
		ID:         "a1",
		Action:     "report_run",
		Actor:      "ops",
		Collection: CollectionMembers,
		Status:     StatusSucceeded,
		OccurredAt: time.Now().UTC(),
	})
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (raw=%q)", err, buf.String())
	}
	if line["msg"] != "report audit" {
		t.Fatalf("unexpected message: %v", line["msg"])
	}
	if line["collection"] != CollectionMembers || line["status"] != string(StatusSucceeded) || line["actor"] != "ops" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestSlogAuditLogReceivesWorkerLifecycle(t *testing.T) {
	var buf bytes.Buffer
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	seedMember(t, svc)
	worker := NewWorker(svc, blob.NewMemory(), NewSlogAuditLog(slog.New(slog.NewJSONHandler(&buf, nil))))
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})
	queued, err := worker.Enqueue(context.Background(), Request{Collection: CollectionMembers})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForCompletion(t, worker, queued.ID)
	if !strings.Contains(buf.String(), `"status":"succeeded"`) {
		t.Fatalf("expected succeeded audit line, got %q", buf.String())
	}
}
