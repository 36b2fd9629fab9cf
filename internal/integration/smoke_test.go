package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"communitycore/internal/adapters/reports"
	"communitycore/internal/blob"
	"communitycore/internal/core"
	"communitycore/internal/infra/persistence/memory"
	"communitycore/internal/infra/persistence/sqlite"
	"communitycore/pkg/domain"
)

// TestIntegrationSmoke runs one end-to-end record lifecycle against each
// in-process storage variant and one put/get/delete cycle against each blob
// adapter. It is deliberately small so it can act as a fast CI health check.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.PersistentStore {
				return memory.NewStore(core.NewDefaultRulesEngine())
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				path := filepath.Join(t.TempDir(), "records.db")
				s, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	for _, sv := range storeVariants {
		t.Run(sv.name, func(t *testing.T) {
			store := sv.open(t)
			metrics := core.NewExpvarMetricsRecorder("")
			var traceBuf bytes.Buffer
			tracer := core.NewJSONTracer(&traceBuf)
			svc := core.NewService(store,
				core.WithMetricsRecorder(metrics),
				core.WithTracer(tracer),
			)

			ana, res, err := svc.CreateMember(ctx, core.MemberInput{
				Name:             "Ana",
				Contact:          "ana@example.org",
				MembershipStatus: "active",
			})
			if err != nil {
				t.Fatalf("create member: %v", err)
			}
			if res.HasBlocking() {
				t.Fatalf("unexpected blocking violations: %+v", res.Violations)
			}

			tithe, res, err := svc.CreateContribution(ctx, core.ContributionInput{
				MemberID:    ana.ID,
				Type:        "Tithe",
				Amount:      120,
				Description: "monthly tithe",
			})
			if err != nil {
				t.Fatalf("create contribution: %v", err)
			}
			if res.HasBlocking() {
				t.Fatalf("unexpected blocking violations on contribution: %+v", res.Violations)
			}
			if tithe.CommitmentDate.IsZero() {
				t.Fatalf("expected commitment date defaulted, got zero")
			}

			// Contributions for missing members never reach the store.
			_, _, err = svc.CreateContribution(ctx, core.ContributionInput{
				MemberID:    "ghost",
				Type:        "Offering",
				Amount:      10,
				Description: "one-off gift",
			})
			var nf core.ErrNotFound
			if !errors.As(err, &nf) || nf.Entity != domain.EntityMember || nf.ID != "ghost" {
				t.Fatalf("expected member not-found for ghost contribution, got %v", err)
			}

			// Deleting the member warns about the dangling tithe but keeps it.
			res, err = svc.DeleteMember(ctx, ana.ID)
			if err != nil {
				t.Fatalf("delete member: %v", err)
			}
			warnings := res.Warnings()
			if len(warnings) != 1 || warnings[0].EntityID != tithe.ID {
				t.Fatalf("expected one warning naming %s, got %+v", tithe.ID, warnings)
			}
			contributions, err := svc.ListContributions(ctx)
			if err != nil {
				t.Fatalf("list contributions: %v", err)
			}
			if len(contributions) != 1 || contributions[0].ID != tithe.ID {
				t.Fatalf("expected dangling contribution to survive, got %+v", contributions)
			}

			snapshot := metrics.Snapshot()
			if snapshot.Results["create_member"]["success"] == 0 {
				t.Fatalf("expected create_member success metric: %+v", snapshot.Results)
			}
			if traceBuf.Len() == 0 {
				t.Fatalf("expected trace exporter to emit spans")
			}
			var foundSpan bool
			for _, entry := range tracer.Entries() {
				if entry.Operation == "create_member" && entry.Status == "success" {
					foundSpan = true
					break
				}
			}
			if !foundSpan {
				t.Fatalf("expected create_member trace entry, entries=%+v", tracer.Entries())
			}
		})
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}

	for _, bv := range blobVariants {
		t.Run(bv.name, func(t *testing.T) {
			bs := bv.open(t)
			key := "smoke/report.txt"
			payload := []byte("hello")
			info, err := bs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "text/plain"})
			if err != nil {
				t.Fatalf("blob put: %v", err)
			}
			if info.Key != key || info.Size <= 0 {
				t.Fatalf("unexpected blob info: %+v", info)
			}
			_, rc, err := bs.Get(ctx, key)
			if err != nil {
				t.Fatalf("blob get: %v", err)
			}
			got, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatalf("read payload: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("payload mismatch got=%q want=%q", got, payload)
			}
			if ok, err := bs.Delete(ctx, key); err != nil || !ok {
				t.Fatalf("blob delete: %v ok=%v", err, ok)
			}
		})
	}
}

// TestIntegrationReportArtifact drives a report through the worker and reads
// the resulting artifact back from the blob store.
func TestIntegrationReportArtifact(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, _, err := svc.CreateMember(ctx, core.MemberInput{
		Name:             "Ana",
		Contact:          "ana@example.org",
		MembershipStatus: "active",
	}); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	bs := blob.NewMemory()
	audit := &reports.MemoryAuditLog{}
	worker := reports.NewWorker(svc, bs, audit)
	worker.Start()
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	})

	rec, err := worker.Enqueue(ctx, reports.Request{
		Collection:  reports.CollectionMembers,
		Format:      reports.FormatJSON,
		RequestedBy: "integration",
	})
	if err != nil {
		t.Fatalf("enqueue report: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, ok := worker.Get(rec.ID)
		if !ok {
			t.Fatalf("report %s disappeared", rec.ID)
		}
		if got.Status == reports.StatusSucceeded {
			rec = got
			break
		}
		if got.Status == reports.StatusFailed {
			t.Fatalf("report failed: %s", got.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("report did not complete, status=%s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec.Artifact == nil {
		t.Fatalf("expected artifact on succeeded report")
	}
	_, rc, err := bs.Get(ctx, rec.Artifact.Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var members []domain.Member
	if err := json.Unmarshal(body, &members); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Ana" {
		t.Fatalf("unexpected artifact contents: %+v", members)
	}
	entries := audit.Entries()
	if len(entries) == 0 || entries[len(entries)-1].Status != reports.StatusSucceeded {
		t.Fatalf("expected audit trail ending in success, got %+v", entries)
	}
}
