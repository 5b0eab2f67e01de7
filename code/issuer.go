// Package code issues and consumes rate-limited one-time codes for password reset,
// email confirmation and invitations.
package code

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names a one-time code purpose.
type Kind string

const (
	KindResetPassword Kind = "reset_password"
	KindConfirmEmail  Kind = "confirm_email"
	KindInvite        Kind = "invite"
)

var (
	// ErrTooManyRequests is returned when a code of the same kind was sent less than
	// the configured delay ago.
	ErrTooManyRequests = errors.New("code: too many requests")
	// ErrUnknownKind is returned for kinds without a configured delay.
	ErrUnknownKind = errors.New("code: unknown kind")
	// ErrNotIssued is returned by Consume when no code is stored.
	ErrNotIssued = errors.New("code: not issued")
	// ErrMismatch is returned by Consume when the supplied code differs from the stored one.
	ErrMismatch = errors.New("code: mismatch")
)

// Slot is the per-kind state stored on a user: the pending code and when a code of
// this kind was last sent.
type Slot struct {
	Value  string    `json:"value,omitempty"`
	SentAt time.Time `json:"sent_at,omitempty"`
}

// Pending reports whether an unconsumed code is stored.
func (s Slot) Pending() bool {
	return s.Value != ""
}

// Delays maps each kind to the minimum interval between two sends.
type Delays map[Kind]time.Duration

// Issuer generates and validates codes.
type Issuer struct {
	delays   Delays
	now      func() time.Time
	generate func() (string, error)
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithGenerator overrides code generation.
func WithGenerator(gen func() (string, error)) Option {
	return func(i *Issuer) {
		i.generate = gen
	}
}

// NewIssuer returns an Issuer for the kinds present in delays.
func NewIssuer(delays Delays, opts ...Option) *Issuer {
	copied := make(Delays, len(delays))
	for k, v := range delays {
		copied[k] = v
	}
	i := &Issuer{
		delays:   copied,
		now:      time.Now,
		generate: randomCode,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns the updated slot holding the code to dispatch. An unconsumed code is
// re-sent unchanged; otherwise a new one is generated. SentAt is always refreshed.
func (i *Issuer) Issue(slot Slot, kind Kind) (Slot, error) {
	delay, ok := i.delays[kind]
	if !ok {
		return slot, ErrUnknownKind
	}

	now := i.now()
	if !slot.SentAt.IsZero() && now.Sub(slot.SentAt) < delay {
		return slot, ErrTooManyRequests
	}

	if !slot.Pending() {
		value, err := i.generate()
		if err != nil {
			return slot, err
		}
		slot.Value = value
	}
	slot.SentAt = now
	return slot, nil
}

// Consume checks supplied against the stored code. On an exact match the code is
// cleared and the updated slot returned. A mismatch leaves the stored code in place.
func (i *Issuer) Consume(slot Slot, kind Kind, supplied string) (Slot, error) {
	if _, ok := i.delays[kind]; !ok {
		return slot, ErrUnknownKind
	}
	if !slot.Pending() {
		return slot, ErrNotIssued
	}
	if subtle.ConstantTimeCompare([]byte(slot.Value), []byte(supplied)) != 1 {
		return slot, ErrMismatch
	}
	slot.Value = ""
	return slot, nil
}

func randomCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
