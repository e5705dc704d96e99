//go:build !integration

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/capture-cli/internal/extract"
	"github.com/tastebase/capture-cli/internal/model"
)

func makeFakePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("photo-%d.jpg", i)
	}
	return paths
}

func fakeResult(path string) *extract.Result {
	return &extract.Result{
		Record: &model.StructuredRecord{
			Domain:   model.DomainRecipe,
			Identity: path,
			Recipe:   &model.RecipeFields{},
		},
		Confidence: model.ConfidenceScore{Value: 0.9},
		Metadata:   model.ProviderMetadata{Provider: "anthropic", CostUSD: 0.01},
		EntryID:    "entry-" + path,
	}
}

func TestProcessFiles_Empty(t *testing.T) {
	outcomes := processFiles(context.Background(), nil, 2, func(_ context.Context, _ string) (*extract.Result, error) {
		t.Fatal("extractFunc should not be called for empty input")
		return nil, nil
	})
	assert.Empty(t, outcomes)
}

func TestProcessFiles_AllSucceed(t *testing.T) {
	paths := makeFakePaths(3)
	var count atomic.Int64

	outcomes := processFiles(context.Background(), paths, 2, func(_ context.Context, path string) (*extract.Result, error) {
		count.Add(1)
		return fakeResult(path), nil
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, int64(3), count.Load())
	for i, out := range outcomes {
		assert.Equal(t, paths[i], out.File, "outcomes keep input order")
		assert.Empty(t, out.Error)
		require.NotNil(t, out.Record)
		assert.Equal(t, paths[i], out.Record.Identity)
		assert.Equal(t, "entry-"+paths[i], out.EntryID)
		assert.InDelta(t, 0.01, out.CostUSD, 1e-9)
	}
}

func TestProcessFiles_MixedResults(t *testing.T) {
	paths := makeFakePaths(4)

	outcomes := processFiles(context.Background(), paths, 2, func(_ context.Context, path string) (*extract.Result, error) {
		if path == "photo-1.jpg" || path == "photo-3.jpg" {
			return nil, errors.New("provider timeout")
		}
		return fakeResult(path), nil
	})

	require.Len(t, outcomes, 4)
	assert.NotNil(t, outcomes[0].Record)
	assert.Nil(t, outcomes[1].Record)
	assert.Contains(t, outcomes[1].Error, "provider timeout")
	assert.NotNil(t, outcomes[2].Record)
	assert.Contains(t, outcomes[3].Error, "provider timeout")
}

func TestProcessFiles_FailuresDoNotAbort(t *testing.T) {
	paths := makeFakePaths(3)
	var count atomic.Int64

	outcomes := processFiles(context.Background(), paths, 1, func(_ context.Context, _ string) (*extract.Result, error) {
		count.Add(1)
		return nil, errors.New("always fails")
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, int64(3), count.Load(), "every file is still attempted")
	for _, out := range outcomes {
		assert.NotEmpty(t, out.Error)
		assert.Zero(t, out.CostUSD)
	}
}

func TestProcessFiles_ConcurrencyBound(t *testing.T) {
	paths := makeFakePaths(8)

	var mu sync.Mutex
	inFlight, peak := 0, 0

	processFiles(context.Background(), paths, 2, func(_ context.Context, path string) (*extract.Result, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
		return fakeResult(path), nil
	})

	assert.LessOrEqual(t, peak, 2, "no more than 2 extractions in flight")
}

func TestProcessFiles_ZeroConcurrency(t *testing.T) {
	paths := makeFakePaths(2)
	var count atomic.Int64

	outcomes := processFiles(context.Background(), paths, 0, func(_ context.Context, path string) (*extract.Result, error) {
		count.Add(1)
		return fakeResult(path), nil
	})

	require.Len(t, outcomes, 2)
	assert.Equal(t, int64(2), count.Load())
}

func TestProcessFiles_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths := makeFakePaths(2)

	outcomes := processFiles(ctx, paths, 2, func(ctx context.Context, path string) (*extract.Result, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fakeResult(path), nil
	})

	// Individual failures are recorded per file, never surfaced as a batch error.
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.NotEmpty(t, out.Error)
	}
}
