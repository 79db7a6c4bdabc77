package reconcile

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkPool_RunsAllSubmittedWork(t *testing.T) {
	t.Parallel()

	var processed atomic.Int64

	wp := newWorkPool(4, func(_ int, w int) error {
		processed.Add(int64(w))

		return nil
	})

	for i := 1; i <= 10; i++ {
		wp.Submit(i)
	}

	require.NoError(t, wp.Wait())
	require.EqualValues(t, 55, processed.Load())
}

func TestWorkPool_JoinsWorkerErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	wp := newWorkPool(2, func(_ int, w int) error {
		if w == 2 {
			return errBoom
		}

		return nil
	})

	wp.Submit(1)
	wp.Submit(2)
	wp.Submit(3)

	err := wp.Wait()
	require.ErrorIs(t, err, errBoom)
}

func TestWorkPool_RecoversWorkerPanic(t *testing.T) {
	t.Parallel()

	wp := newWorkPool(1, func(_ int, w int) error {
		if w == 1 {
			panic("simulated worker panic")
		}

		return nil
	})

	wp.Submit(1)

	err := wp.Wait()
	require.Error(t, err)
	require.Contains(t, err.Error(), "panic in worker")
}

func TestWorkPool_WaitIsIdempotentAfterClose(t *testing.T) {
	t.Parallel()

	wp := newWorkPool(2, func(_ int, _ int) error { return nil })
	wp.Submit(1)
	wp.Close()

	require.NoError(t, wp.Wait())
}

func TestWorkPool_DefaultsWorkerCountWhenNonPositive(t *testing.T) {
	t.Parallel()

	wp := newWorkPool(0, func(_ int, _ int) error { return nil })
	wp.Submit(1)

	require.NoError(t, wp.Wait())
}
