package ingestion_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/streamguard/streamguard/internal/ingestion"
	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/store"
)

func TestParseLine_Valid(t *testing.T) {
	e, ok := ingestion.ParseLine("1700000000, 101, 10.0.0.1, LOGIN, -, FAILED")
	if !ok {
		t.Fatal("expected valid line to parse")
	}
	if e.UserID != 101 || e.IPAddress != "10.0.0.1" || e.EventType != model.EventLogin ||
		e.ResourceID != model.NoResource || e.Status != model.StatusFailed {
		t.Fatalf("unexpected parse result: %+v", e)
	}
	if !e.Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("unexpected timestamp: %v", e.Timestamp)
	}
}

func TestParseLine_CommentAndBlank(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment", "  # indented comment"} {
		if _, ok := ingestion.ParseLine(line); ok {
			t.Fatalf("expected %q to be treated as a non-entry", line)
		}
	}
}

func TestParseLine_Malformed(t *testing.T) {
	cases := []string{
		"1700000000, 101, 10.0.0.1, LOGIN, -",                         // too few fields
		"1700000000, 101, 10.0.0.1, LOGIN, -, FAILED, extra",          // too many fields
		"not-a-timestamp, 101, 10.0.0.1, LOGIN, -, FAILED",            // bad timestamp
		"1700000000, not-a-user, 10.0.0.1, LOGIN, -, FAILED",          // bad user id
		"1700000000, 101, 10.0.0.1, NOT_AN_EVENT, -, FAILED",          // bad event type
		"1700000000, 101, 10.0.0.1, LOGIN, -, NOT_A_STATUS",           // bad status
	}
	for _, line := range cases {
		if _, ok := ingestion.ParseLine(line); ok {
			t.Fatalf("expected malformed line to be rejected: %q", line)
		}
	}
}

func TestParseLine_TruncatesOverlongFields(t *testing.T) {
	longIP := strings.Repeat("9", model.MaxIPLen+10)
	longResource := strings.Repeat("r", model.MaxResourceIDLen+10)
	line := "1700000000, 101, " + longIP + ", FILE_ACCESS, " + longResource + ", SUCCESS"

	e, ok := ingestion.ParseLine(line)
	if !ok {
		t.Fatal("expected over-long fields to be truncated, not rejected")
	}
	if len(e.IPAddress) != model.MaxIPLen {
		t.Fatalf("expected IP truncated to %d chars, got %d", model.MaxIPLen, len(e.IPAddress))
	}
	if len(e.ResourceID) != model.MaxResourceIDLen {
		t.Fatalf("expected resource truncated to %d chars, got %d", model.MaxResourceIDLen, len(e.ResourceID))
	}
}

func TestAdapter_Run_PushesParsedEntriesAndSkipsMalformed(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	input := strings.Join([]string{
		"# header comment",
		"1700000000, 101, 10.0.0.1, LOGIN, -, FAILED",
		"this-line-is-garbage",
		"1700000001, 101, 10.0.0.1, LOGIN, -, FAILED",
		"",
		"1700000002, 102, 10.0.0.2, FILE_ACCESS, doc1, SUCCESS",
	}, "\n")

	a := ingestion.New(s, nil, nil, 0)
	if err := a.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Mu.Lock()
	count := s.LogCountLocked()
	done := s.IngestionDoneLocked()
	u101, ok101 := s.LookupUserLocked(101)
	u102, ok102 := s.LookupUserLocked(102)
	s.Mu.Unlock()

	if count != 3 {
		t.Fatalf("expected 3 parsed entries pushed, got %d", count)
	}
	if !done {
		t.Fatal("expected Run to signal ingestion done on normal exit")
	}
	if !ok101 || u101.FailedAttempts != 2 {
		t.Fatalf("expected user 101 to have 2 failed attempts, got %+v (ok=%v)", u101, ok101)
	}
	if !ok102 || u102.ResourceCount() != 1 {
		t.Fatalf("expected user 102 to have 1 resource, got %+v (ok=%v)", u102, ok102)
	}
}

func TestAdapter_Run_RespectsContextCancellation(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := ingestion.New(s, nil, nil, 0)
	err := a.Run(ctx, strings.NewReader("1700000000, 101, 10.0.0.1, LOGIN, -, FAILED\n"))
	if err == nil {
		t.Fatal("expected Run to return an error for an already-cancelled context")
	}

	s.Mu.Lock()
	done := s.IngestionDoneLocked()
	s.Mu.Unlock()
	if !done {
		t.Fatal("expected Run to signal ingestion done even when cancelled")
	}
}

func TestAdapter_Run_LineDelayStillSignalsDoneOnCancel(t *testing.T) {
	s := store.New(300*time.Second, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	input := strings.Repeat("1700000000, 101, 10.0.0.1, LOGIN, -, FAILED\n", 50)
	a := ingestion.New(s, nil, nil, 50*time.Millisecond)

	_ = a.Run(ctx, strings.NewReader(input))

	s.Mu.Lock()
	done := s.IngestionDoneLocked()
	s.Mu.Unlock()
	if !done {
		t.Fatal("expected Run to signal ingestion done when the delayed loop is cancelled mid-stream")
	}
}
