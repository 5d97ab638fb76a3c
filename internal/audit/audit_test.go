package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	got     chan Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.got <- e
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1"})
	}
	d.Close()

	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected 3 delivered events after Close, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := len(sink.Events()); got != 3 {
		t.Fatalf("emit after close must be dropped, got %d events", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 16)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event held by the worker, one buffered, the rest dropped.
	for i := 0; i < 6; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
		time.Sleep(5 * time.Millisecond)
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events when the buffer is full")
	}
	close(sink.release)
	d.Close()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "logout", UserID: "u1", Success: true})

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if decoded.EventType != "logout" || decoded.UserID != "u1" || !decoded.Success {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid credentials", Metadata: map[string]string{"reason": "bad_password"}})
	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"event_type":"login_failure"`, `"component":"audit"`, `"meta.reason":"bad_password"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("expected fan-out to every non-nil sink")
	}
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink failure") }

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Close()
}

func TestDispatcherStampsAndScrubs(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{
		EventType: "password_reset_request",
		Metadata:  map[string]string{"purpose": "password_reset", "reset_token": "raw", "OTPCode": "123456"},
	})
	d.Close()

	e := <-sink.Events()
	if e.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
	if _, ok := e.Metadata["reset_token"]; ok {
		t.Fatal("token metadata must be removed")
	}
	if _, ok := e.Metadata["OTPCode"]; ok {
		t.Fatal("code metadata must be removed")
	}
	if e.Metadata["purpose"] != "password_reset" {
		t.Fatalf("unexpected metadata: %v", e.Metadata)
	}
}

func TestScrubMetadataLeavesCallerMapAlone(t *testing.T) {
	in := map[string]string{"password_hash": "x", "reason": "y"}
	out := scrubMetadata(in)
	if len(in) != 2 {
		t.Fatal("input map must not be modified")
	}
	if len(out) != 1 || out["reason"] != "y" {
		t.Fatalf("unexpected scrubbed metadata: %v", out)
	}
}
