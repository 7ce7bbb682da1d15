package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFail_LocksOnThreshold(t *testing.T) {
	p := DefaultPolicy()
	s := State{}

	for i := 1; i <= 4; i++ {
		var applied bool
		s, applied = p.Fail(s, t0)
		require.True(t, applied)
		require.Equal(t, i, s.Attempts)
		require.Nil(t, s.LockUntil, "must not lock before the threshold")
	}

	s, applied := p.Fail(s, t0)
	require.True(t, applied)
	assert.Equal(t, 5, s.Attempts)
	require.NotNil(t, s.LockUntil)
	assert.Equal(t, t0.Add(2*time.Hour), *s.LockUntil)
	assert.True(t, p.IsLocked(s, t0))
}

func TestFail_WhileLockedIsNoop(t *testing.T) {
	p := DefaultPolicy()
	until := t0.Add(time.Hour)
	s := State{Attempts: 5, LockUntil: &until}

	next, applied := p.Fail(s, t0.Add(30*time.Minute))
	assert.False(t, applied)
	assert.Equal(t, s, next)
}

func TestFail_AfterExpiryRestartsCount(t *testing.T) {
	p := DefaultPolicy()
	until := t0
	s := State{Attempts: 5, LockUntil: &until}

	assert.False(t, p.IsLocked(s, t0), "lock ending exactly now is expired")

	next, applied := p.Fail(s, t0.Add(time.Second))
	require.True(t, applied)
	assert.Equal(t, 1, next.Attempts)
	assert.Nil(t, next.LockUntil)
}

func TestFail_CustomPolicy(t *testing.T) {
	p := Policy{Threshold: 2, Duration: time.Minute}
	s, _ := p.Fail(State{}, t0)
	s, _ = p.Fail(s, t0)
	require.NotNil(t, s.LockUntil)
	assert.Equal(t, t0.Add(time.Minute), *s.LockUntil)
}

func TestSucceed_Resets(t *testing.T) {
	assert.Equal(t, State{}, DefaultPolicy().Succeed())
}
