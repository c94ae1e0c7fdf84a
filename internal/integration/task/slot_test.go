package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollUntil[T any](t *testing.T, s *Slot[T]) (T, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res, ok, err := s.Poll()
		if ok {
			return res, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("task did not finish")
	var zero T
	return zero, nil
}

func TestSlot_SpawnPoll(t *testing.T) {
	var s Slot[int]
	assert.False(t, s.Busy())

	_, ok, err := s.Poll()
	assert.False(t, ok)
	assert.NoError(t, err)

	require.NoError(t, s.Spawn(context.Background(), func(context.Context) int { return 42 }))
	assert.True(t, s.Busy())

	res, err := pollUntil(t, &s)
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.False(t, s.Busy())
}

func TestSlot_RefusesWhileOccupied(t *testing.T) {
	var s Slot[string]
	release := make(chan struct{})

	require.NoError(t, s.Spawn(context.Background(), func(context.Context) string {
		<-release
		return "first"
	}))
	err := s.Spawn(context.Background(), func(context.Context) string { return "second" })
	assert.ErrorIs(t, err, ErrSlotBusy)

	_, ok, _ := s.Poll()
	assert.False(t, ok, "running task is not joined")

	close(release)
	res, err := pollUntil(t, &s)
	require.NoError(t, err)
	assert.Equal(t, "first", res)

	require.NoError(t, s.Spawn(context.Background(), func(context.Context) string { return "third" }))
	res, _, _ = s.Wait()
	assert.Equal(t, "third", res)
}

func TestSlot_FinishedButUnjoinedStillBusy(t *testing.T) {
	var s Slot[int]
	require.NoError(t, s.Spawn(context.Background(), func(context.Context) int { return 1 }))

	require.Eventually(t, func() bool { return s.Live() == 0 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Spawn(context.Background(), func(context.Context) int { return 2 }), ErrSlotBusy)
}

func TestSlot_RecoversPanic(t *testing.T) {
	var s Slot[int]
	require.NoError(t, s.Spawn(context.Background(), func(context.Context) int {
		panic("boom")
	}))

	res, err := pollUntil(t, &s)
	assert.Zero(t, res)

	var perr *PanicError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
	assert.False(t, s.Busy(), "a panicked task is joined like any other")
}

func TestSlot_BoundedConcurrency(t *testing.T) {
	var s Slot[int]
	maxLive := 0

	for i := 0; i < 200; i++ {
		_ = s.Spawn(context.Background(), func(context.Context) int {
			time.Sleep(100 * time.Microsecond)
			return i
		})
		if n := s.Live(); n > maxLive {
			maxLive = n
		}
		s.Poll()
	}
	s.Wait()

	assert.LessOrEqual(t, maxLive, 1)
	assert.Zero(t, s.Live())
	assert.Positive(t, s.Spawned())
}
