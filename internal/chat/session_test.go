package chat

import (
	"errors"
	"testing"
	"time"

	"botforge/pkg/domain"
)

func TestSessionManagerOpenGetClose(t *testing.T) {
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1", Name: "Helper"}, true)
	if sess.ID == "" {
		t.Fatalf("session ID must be set")
	}

	got, err := mgr.Get(sess.ID, "user-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != sess {
		t.Fatalf("expected the same session instance")
	}

	if _, err := mgr.Get(sess.ID, "user-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("another user's lookup must fail, got %v", err)
	}

	if err := mgr.Close(sess.ID, "user-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("another user must not close the session, got %v", err)
	}
	if err := mgr.Close(sess.ID, "user-1"); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if _, err := mgr.Get(sess.ID, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("closed session must be gone, got %v", err)
	}
}

func TestSessionAppendPreservesOrder(t *testing.T) {
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1"}, true)
	sess.Append(domain.Turn{Role: domain.RoleUser, Text: "one"})
	sess.Append(domain.Turn{Role: domain.RoleAssistant, Text: "two"})
	sess.Append(domain.Turn{Role: domain.RoleUser, Text: "three"})

	turns := sess.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"one", "two", "three"} {
		if turns[i].Text != want {
			t.Fatalf("turn %d: got %q want %q", i, turns[i].Text, want)
		}
	}

	// Snapshot is a copy: appending after the snapshot must not change it.
	sess.Append(domain.Turn{Role: domain.RoleAssistant, Text: "four"})
	if len(turns) != 3 {
		t.Fatalf("snapshot must not grow, got %d turns", len(turns))
	}
}

func TestSessionManagerSweepDropsIdle(t *testing.T) {
	mgr := NewSessionManager(time.Minute)
	sess := mgr.Open("user-1", domain.Bot{ID: "bot-1"}, true)

	if removed := mgr.Sweep(time.Now()); removed != 0 {
		t.Fatalf("fresh session must survive a sweep, removed %d", removed)
	}
	if removed := mgr.Sweep(time.Now().Add(2 * time.Minute)); removed != 1 {
		t.Fatalf("idle session should be swept, removed %d", removed)
	}
	if _, err := mgr.Get(sess.ID, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("swept session must be gone, got %v", err)
	}
}
