// Package throttle implements the login lockout state machine.
//
// An account is UNLOCKED while LockUntil is nil or in the past, and LOCKED
// while LockUntil is in the future. Expiry is lazy: nothing clears a stale
// LockUntil until the next failure or success is recorded.
package throttle

import (
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
)

// State is the throttle-relevant slice of an account.
type State struct {
	Attempts  int
	LockUntil *time.Time
}

type Policy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Threshold: common.DefaultLockThreshold, Duration: common.DefaultLockDuration}
}

// IsLocked reports whether the lock is still in force at now.
func (p Policy) IsLocked(s State, now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// Fail records one failed password check. While locked the state is returned
// unchanged and applied is false. An expired lock restarts the count at one.
func (p Policy) Fail(s State, now time.Time) (next State, applied bool) {
	if p.IsLocked(s, now) {
		return s, false
	}

	attempts := s.Attempts + 1
	if s.LockUntil != nil {
		attempts = 1
	}

	next = State{Attempts: attempts}
	if attempts >= p.Threshold {
		until := now.Add(p.Duration)
		next.LockUntil = &until
	}
	return next, true
}

// Succeed returns the state after a successful login.
func (p Policy) Succeed() State {
	return State{}
}
