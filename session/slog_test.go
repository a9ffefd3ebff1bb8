package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/smnsjas/go-livycore/internal/livytest"
)

func TestSlogOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	srv := livytest.NewServer()
	defer srv.Close()

	s := newTestSession(t, srv, WithLogger(logger))
	if err := s.Create(context.Background()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var found bool
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("failed to parse log JSON: %v", err)
		}
		if entry["msg"] != "state transition" {
			continue
		}
		found = true
		if entry["level"] != "DEBUG" {
			t.Errorf("expected level DEBUG, got %v", entry["level"])
		}
		if entry["session_id"] != float64(1) {
			t.Errorf("expected session_id 1, got %v", entry["session_id"])
		}
		if entry["session_kind"] != "spark" {
			t.Errorf("expected session_kind spark, got %v", entry["session_kind"])
		}
		if entry["to"] != "Starting" {
			t.Errorf("expected transition to Starting, got %v", entry["to"])
		}
	}
	if !found {
		t.Fatal("no state transition logged")
	}
}
