package session

import (
	"fmt"
	"testing"
	"time"
)

func sessionAt(hash string, lastUsed time.Time) Session {
	return Session{Hash: hash, CreatedAt: lastUsed, LastUsedAt: lastUsed}
}

func TestRegisterExistingSessionIsNotDuplicated(t *testing.T) {
	r := NewRegistry(3)
	now := time.Now()
	list := []Session{sessionAt("a", now)}

	reg := r.Register(list, sessionAt("a", now.Add(time.Minute)))
	if reg.New {
		t.Fatal("expected existing session to be reused")
	}
	if len(reg.Sessions) != 1 || !reg.Session.LastUsedAt.Equal(now) {
		t.Fatalf("expected list unchanged, got %+v", reg.Sessions)
	}
}

func TestRegisterEvictsLeastRecentlyUsed(t *testing.T) {
	r := NewRegistry(3)
	base := time.Unix(1700000000, 0)

	var list []Session
	for i := 0; i < 10; i++ {
		reg := r.Register(list, sessionAt(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute)))
		if !reg.New {
			t.Fatalf("expected session %d to be new", i)
		}
		list = reg.Sessions
		if len(list) > r.MaxPerUser() {
			t.Fatalf("session count %d exceeds cap", len(list))
		}
	}

	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	for i, want := range []string{"s7", "s8", "s9"} {
		if list[i].Hash != want {
			t.Fatalf("expected retained sessions s7..s9, got %+v", list)
		}
	}
}

func TestRegisterEvictionHonorsLastUsedAndInsertionOrder(t *testing.T) {
	r := NewRegistry(2)
	t0 := time.Unix(1700000000, 0)

	// "a" was inserted first but used most recently; "b" and "c" tie.
	list := []Session{sessionAt("a", t0.Add(time.Hour)), sessionAt("b", t0)}
	reg := r.Register(list, sessionAt("c", t0))
	if len(reg.Evicted) != 1 || reg.Evicted[0].Hash != "b" {
		t.Fatalf("expected b evicted, got %+v", reg.Evicted)
	}

	tie := []Session{sessionAt("x", t0), sessionAt("y", t0)}
	reg = r.Register(tie, sessionAt("z", t0))
	if len(reg.Evicted) != 1 || reg.Evicted[0].Hash != "x" {
		t.Fatalf("expected first inserted session evicted on tie, got %+v", reg.Evicted)
	}
}

func TestRegisterDoesNotMutateInput(t *testing.T) {
	r := NewRegistry(1)
	now := time.Now()
	list := []Session{sessionAt("a", now)}

	_ = r.Register(list, sessionAt("b", now))
	if len(list) != 1 || list[0].Hash != "a" {
		t.Fatalf("input list was mutated: %+v", list)
	}
}

func TestFindAndDelete(t *testing.T) {
	now := time.Now()
	list := []Session{sessionAt("a", now), sessionAt("b", now)}

	if _, ok := FindByHash(list, "b"); !ok {
		t.Fatal("expected to find b")
	}
	if _, ok := FindByHash(list, ""); ok {
		t.Fatal("expected empty hash lookup to fail")
	}

	list = DeleteByHash(list, "a")
	if len(list) != 1 || list[0].Hash != "b" {
		t.Fatalf("unexpected list after delete: %+v", list)
	}
	if again := DeleteByHash(list, "a"); len(again) != 1 {
		t.Fatal("expected delete of absent hash to be idempotent")
	}
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	now := time.Now()
	s := sessionAt("a", now)

	later := s.Touch(now.Add(time.Hour))
	if !later.LastUsedAt.Equal(now.Add(time.Hour)) {
		t.Fatal("expected Touch to advance LastUsedAt")
	}
	if !s.LastUsedAt.Equal(now) {
		t.Fatal("Touch must not modify the receiver")
	}
	if earlier := later.Touch(now); !earlier.LastUsedAt.Equal(now.Add(time.Hour)) {
		t.Fatal("Touch must ignore an earlier time")
	}
}
