package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"statements-backend/internal/shared/storage/object"
)

func TestPutOpenAndMetadata(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	ok, err := store.Exists(ctx, "datasets/v1/a.jsonl")
	if err != nil || ok {
		t.Fatalf("expected missing object before put, got %v %v", ok, err)
	}

	n, err := store.Put(ctx, "datasets/v1/a.jsonl", strings.NewReader("{\"a\":1}\n"), object.PutOptions{
		ContentType: "application/x-ndjson",
		Metadata:    map[string]string{"SHA256": "abc"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes written, got %d", n)
	}

	if ok, err := store.Exists(ctx, "datasets/v1/a.jsonl"); err != nil || !ok {
		t.Fatalf("expected object after put, got %v %v", ok, err)
	}

	rc, err := store.Open(ctx, "datasets/v1/a.jsonl")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "{\"a\":1}\n" {
		t.Fatalf("unexpected body %q", body)
	}

	meta, err := store.Metadata("datasets/v1/a.jsonl")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.ContentType != "application/x-ndjson" || meta.Metadata["sha256"] != "abc" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Put(context.Background(), "../outside", strings.NewReader("x"), object.PutOptions{}); err == nil {
		t.Fatalf("expected error for traversal key")
	}
	if _, err := store.Open(context.Background(), "/etc/passwd"); err == nil {
		t.Fatalf("expected error for absolute key")
	}
	if _, err := store.Put(context.Background(), "a.jsonl.meta.json", strings.NewReader("x"), object.PutOptions{}); err == nil {
		t.Fatalf("expected error for sidecar key")
	}
}
