package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"communitycore/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	info, err := store.Put(ctx, "reports/members/a.csv", strings.NewReader("id,name\n"), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"collection": "members"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" {
		t.Fatalf("expected content etag: %+v", info)
	}

	got, body, err := store.Get(ctx, "reports/members/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer body.Close()
	payload, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != "id,name\n" {
		t.Fatalf("payload = %q", payload)
	}
	if got.ContentType != "text/csv" || got.Metadata["collection"] != "members" {
		t.Fatalf("sidecar metadata lost: %+v", got)
	}
}

func TestPutRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("a"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("b"), core.PutOptions{}); err == nil {
		t.Fatalf("expected overwrite rejection")
	}
}

func TestListWalksNestedKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"reports/members/1.json", "reports/events/1.json", "other/x"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("unexpected listing: %+v", infos)
	}
	if infos[0].Key >= infos[1].Key {
		t.Fatalf("listing not key-ascending: %+v", infos)
	}
}

func TestDeleteRemovesDataAndSidecar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("a"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	existed, err := store.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("delete = (%v, %v)", existed, err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatalf("expected head failure after delete")
	}
}

func TestPresignURLOnlyGET(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "GET"})
	if err != nil || !strings.Contains(url, "k") {
		t.Fatalf("presign get = (%q, %v)", url, err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}
