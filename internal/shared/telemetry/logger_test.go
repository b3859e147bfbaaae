package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := SetLogger(zap.New(core))
	defer restore()

	Info("queue.enqueued", map[string]any{
		"document_id": "doc-1",
		"status":      "pending",
	})
	Error("queue.reprocess_failed", map[string]any{
		"error": errors.New("already processing"),
	})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["document_id"] != "doc-1" {
		t.Fatalf("unexpected document_id: %v", first["document_id"])
	}
	second := entries[1]
	if second.Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", second.Level)
	}
	if second.ContextMap()["error"] != "already processing" {
		t.Fatalf("unexpected error field: %v", second.ContextMap()["error"])
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	if err := Init("loud", "json", "stdout"); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
