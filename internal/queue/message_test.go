package queue

import (
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := NewMessage("doc-123", "item-1", 2, "admin-1", "request-456",
		time.Date(2026, 1, 30, 22, 0, 0, 0, time.UTC))

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
	if got.EnqueuedAt != "2026-01-30T22:00:00Z" || got.Version != MessageVersion {
		t.Fatalf("unexpected stamp %+v", got)
	}
}

func TestDecodeResult(t *testing.T) {
	body := `{"documentId":"doc-1","status":"failed","durationSeconds":4.5,"errorMessage":"ocr timeout","extractedResultPayload":{"rows":3}}`

	res, err := DecodeResult([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.DocumentID != "doc-1" || res.Status != "failed" || res.ErrorMessage != "ocr timeout" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.DurationSeconds == nil || *res.DurationSeconds != 4.5 {
		t.Fatalf("unexpected duration %v", res.DurationSeconds)
	}
	if string(res.ExtractedResultPayload) != `{"rows":3}` {
		t.Fatalf("unexpected payload %s", res.ExtractedResultPayload)
	}

	if _, err := DecodeResult([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}
