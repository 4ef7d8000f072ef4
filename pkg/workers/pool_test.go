package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"satbathy/internal/models"
)

func TestForEachWithoutScopeRunsSerially(t *testing.T) {
	calls := 0
	err := ForEach(context.Background(), 100, func(start, end int) error {
		calls++
		require.Equal(t, 0, start)
		require.Equal(t, 100, end)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestForEachCoversEveryIndexOnce(t *testing.T) {
	ctx, release := Scope(context.Background(), models.Parallelism{Backend: models.BackendThreading, Workers: 4})
	defer release()

	hits := make([]int32, 1000)
	err := ForEach(ctx, len(hits), func(start, end int) error {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
		return nil
	})
	require.NoError(t, err)
	for i, h := range hits {
		require.EqualValues(t, 1, h, "index %d", i)
	}
}

func TestForEachReturnsChunkError(t *testing.T) {
	ctx, release := Scope(context.Background(), models.Parallelism{Workers: 3})
	defer release()

	boom := errors.New("boom")
	err := ForEach(ctx, 50, func(start, end int) error {
		if start <= 25 && 25 < end {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestReleaseClosesScope(t *testing.T) {
	ctx, release := Scope(context.Background(), models.Parallelism{Workers: 8})
	require.Equal(t, 8, Size(ctx))
	release()
	release()
	require.Equal(t, 1, Size(ctx))
}

func TestSequentialBackendUsesOneWorker(t *testing.T) {
	ctx, release := Scope(context.Background(), models.Parallelism{Backend: models.BackendSequential, Workers: 8})
	defer release()
	require.Equal(t, 1, Size(ctx))
}

func TestMapKeepsOrder(t *testing.T) {
	ctx, release := Scope(context.Background(), models.Parallelism{Workers: 4})
	defer release()

	out, err := Map(ctx, 257, func(i int) (int, error) { return i * i, nil })
	require.NoError(t, err)
	for i, v := range out {
		require.Equal(t, i*i, v)
	}
}
