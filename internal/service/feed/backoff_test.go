package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 5)
	assert.Equal(t, StateDisconnected, b.Status().State)

	now := time.Unix(100, 0)
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for i, w := range want {
		got := b.Failure(now)
		assert.Equal(t, w*time.Second, got, "attempt %d", i+1)
	}
	st := b.Status()
	assert.Equal(t, 8, st.Attempt)
	assert.Equal(t, now.Add(30*time.Second), st.NextAt)
}

func TestBackoffStates(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 3)
	now := time.Now()

	b.Failure(now)
	assert.Equal(t, StateBackingOff, b.Status().State)
	b.Failure(now)
	assert.Equal(t, StateBackingOff, b.Status().State)
	b.Failure(now)
	assert.Equal(t, StateFailed, b.Status().State)
	// retries continue from the failed state
	assert.Equal(t, 8*time.Second, b.Failure(now))

	b.Connected()
	st := b.Status()
	assert.Equal(t, StateConnected, st.State)
	assert.Zero(t, st.Attempt)
	assert.Equal(t, time.Second, b.Failure(now))

	b.Stop()
	assert.Equal(t, StateDisconnected, b.Status().State)
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0, 0)
	assert.Equal(t, time.Second, b.Failure(time.Now()))
	assert.Equal(t, time.Second, b.Failure(time.Now()))
}
