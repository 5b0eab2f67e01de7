package code

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestIssuer(clock *testClock) *Issuer {
	n := 0
	return NewIssuer(Delays{
		KindResetPassword: time.Minute,
		KindConfirmEmail:  time.Minute,
		KindInvite:        time.Hour,
	}, WithClock(clock.Now), WithGenerator(func() (string, error) {
		n++
		return "code-" + strconv.Itoa(n), nil
	}))
}

func TestIssueRateLimitAndReuse(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	issuer := newTestIssuer(clock)

	slot, err := issuer.Issue(Slot{}, KindResetPassword)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if slot.Value != "code-1" || !slot.SentAt.Equal(clock.now) {
		t.Fatalf("unexpected slot: %+v", slot)
	}

	clock.now = clock.now.Add(30 * time.Second)
	if _, err := issuer.Issue(slot, KindResetPassword); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests within delay, got %v", err)
	}

	clock.now = clock.now.Add(time.Minute)
	again, err := issuer.Issue(slot, KindResetPassword)
	if err != nil {
		t.Fatalf("issue after delay: %v", err)
	}
	if again.Value != "code-1" {
		t.Fatalf("expected unconsumed code to be re-sent, got %q", again.Value)
	}
	if !again.SentAt.Equal(clock.now) {
		t.Fatal("expected SentAt to be refreshed")
	}
}

func TestIssueAfterConsumeGeneratesNewCode(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	issuer := newTestIssuer(clock)

	slot, err := issuer.Issue(Slot{}, KindConfirmEmail)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	slot, err = issuer.Consume(slot, KindConfirmEmail, slot.Value)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if slot.Pending() {
		t.Fatal("expected code to be cleared after consume")
	}

	clock.now = clock.now.Add(2 * time.Minute)
	next, err := issuer.Issue(slot, KindConfirmEmail)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if next.Value != "code-2" {
		t.Fatalf("expected a new code, got %q", next.Value)
	}
}

func TestConsumeDistinguishesMissingAndWrong(t *testing.T) {
	clock := &testClock{now: time.Now()}
	issuer := newTestIssuer(clock)

	if _, err := issuer.Consume(Slot{}, KindInvite, "x"); !errors.Is(err, ErrNotIssued) {
		t.Fatalf("expected ErrNotIssued, got %v", err)
	}

	slot := Slot{Value: "right", SentAt: clock.now}
	kept, err := issuer.Consume(slot, KindInvite, "wrong")
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if kept.Value != "right" {
		t.Fatal("expected mismatch to keep the stored code")
	}
}

func TestUnknownKind(t *testing.T) {
	issuer := NewIssuer(Delays{KindInvite: time.Minute})
	if _, err := issuer.Issue(Slot{}, KindResetPassword); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind from Issue, got %v", err)
	}
	if _, err := issuer.Consume(Slot{Value: "x"}, Kind("bogus"), "x"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind from Consume, got %v", err)
	}
}

func TestDefaultGeneratorProducesDistinctCodes(t *testing.T) {
	issuer := NewIssuer(Delays{KindInvite: 0})
	a, err := issuer.Issue(Slot{}, KindInvite)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := issuer.Issue(Slot{}, KindInvite)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a.Value == "" || a.Value == b.Value {
		t.Fatalf("expected distinct random codes, got %q and %q", a.Value, b.Value)
	}
}
