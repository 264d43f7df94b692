package domain

import (
	"testing"
	"time"
)

func TestNewScanSessionSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	if _, err := NewScanSession(nil, ScanForward, now); err != ErrEmptyScan {
		t.Fatalf("expected ErrEmptyScan, got %v", err)
	}
	if _, err := NewScanSession([]string{"a"}, "sideways", now); err != ErrInvalidDirection {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}

	order := []string{"a", "b", "c"}
	session, err := NewScanSession(order, ScanBackward, now)
	if err != nil {
		t.Fatalf("NewScanSession() error = %v", err)
	}
	if session.Order[0] != "c" || session.Order[2] != "a" {
		t.Fatalf("backward session must reverse the snapshot: %v", session.Order)
	}

	// The snapshot is a copy: mutating the source must not leak in.
	order[0] = "mutated"
	if session.Order[2] != "a" {
		t.Fatal("session order must be frozen at begin time")
	}
}

func TestScanSessionCursor(t *testing.T) {
	now := time.Now()
	session, err := NewScanSession([]string{"a", "b"}, ScanForward, now)
	if err != nil {
		t.Fatalf("NewScanSession() error = %v", err)
	}

	id, ok := session.Current()
	if !ok || id != "a" {
		t.Fatalf("unexpected current %q %v", id, ok)
	}
	session.Skip()
	id, ok = session.Current()
	if !ok || id != "b" {
		t.Fatalf("unexpected current %q %v", id, ok)
	}
	session.Skip()
	if !session.Done() {
		t.Fatal("expected session done")
	}
	if _, ok := session.Current(); ok {
		t.Fatal("current must report false after the end")
	}
	session.Skip() // past the end is harmless
	pos, total := session.Progress()
	if pos != 2 || total != 2 {
		t.Fatalf("unexpected progress %d/%d", pos, total)
	}
}

func TestRecentRingBounded(t *testing.T) {
	now := time.Now()
	ids := make([]string, RecentRingCapacity+3)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	session, err := NewScanSession(ids, ScanForward, now)
	if err != nil {
		t.Fatalf("NewScanSession() error = %v", err)
	}
	for _, id := range ids {
		session.PushRecent(id)
	}
	if len(session.Recent) != RecentRingCapacity {
		t.Fatalf("expected ring of %d, got %d", RecentRingCapacity, len(session.Recent))
	}
	if session.InRecent("a") {
		t.Fatal("oldest entries must fall out of the ring")
	}
	if !session.InRecent(ids[len(ids)-1]) {
		t.Fatal("newest entry must stay in the ring")
	}
}
