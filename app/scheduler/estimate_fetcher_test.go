package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	"github.com/amirphl/audience-orchestrator/app/services"
	testingutil "github.com/amirphl/audience-orchestrator/testing"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPollBase = 100 * time.Millisecond

func reachEstimate(t *testing.T, ready bool, users int64) *services.ReachEstimate {
	t.Helper()
	est, err := services.ParseReachEstimate([]byte(fmt.Sprintf(`{"data":{"users":%d,"estimate_ready":%t}}`, users, ready)))
	require.NoError(t, err)
	return est
}

func newTestCache(t *testing.T, prefix string) (*scheduler.EstimateCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return scheduler.NewEstimateCache(client, prefix, 24*time.Hour), mr
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newTestFetcher(t *testing.T, client *testingutil.MockFacebookClient, maxAttempts int) (*scheduler.EstimateFetcher, *miniredis.Miniredis, *recordedSleeps) {
	t.Helper()
	cache, mr := newTestCache(t, "")
	sleeps := &recordedSleeps{}
	fetcher := scheduler.NewEstimateFetcher(client, cache, maxAttempts, testPollBase, nil, scheduler.WithEstimateSleep(sleeps.sleep))
	return fetcher, mr, sleeps
}

func estimateRequest(date string) scheduler.EstimateRequest {
	return scheduler.EstimateRequest{
		AdAccountID: "act_1",
		AccessToken: "tok",
		Spec:        map[string]any{"interests": []any{"6003"}, "connections": []any{"A1"}},
		FetchDate:   date,
	}
}

func TestEstimateCacheKey(t *testing.T) {
	a := map[string]any{"interests": []any{"1"}, "geo_locations": map[string]any{"countries": []any{"BR"}}}
	b := map[string]any{"geo_locations": map[string]any{"countries": []any{"BR"}}, "interests": []any{"1"}}

	keyA, err := scheduler.EstimateCacheKey(a, "2024-03-01")
	require.NoError(t, err)
	keyB, err := scheduler.EstimateCacheKey(b, "2024-03-01")
	require.NoError(t, err)
	nextDay, err := scheduler.EstimateCacheKey(a, "2024-03-02")
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB)
	assert.NotEqual(t, keyA, nextDay)
	assert.Regexp(t, `^audiences::fetch::[0-9a-f]{40}$`, keyA)
}

func TestEstimateCache(t *testing.T) {
	ctx := context.Background()

	t.Run("MissReturnsFalse", func(t *testing.T) {
		cache, _ := newTestCache(t, "")
		raw, hit, err := cache.Get(ctx, "audiences::fetch::missing")
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, raw)
	})

	t.Run("PutIsIdempotent", func(t *testing.T) {
		cache, mr := newTestCache(t, "orc:")
		key := "audiences::fetch::abc"

		wrote, err := cache.Put(ctx, key, []byte(`{"data":{"users":1}}`))
		require.NoError(t, err)
		assert.True(t, wrote)

		wrote, err = cache.Put(ctx, key, []byte(`{"data":{"users":2}}`))
		require.NoError(t, err)
		assert.False(t, wrote)

		raw, hit, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.JSONEq(t, `{"data":{"users":1}}`, string(raw))

		assert.True(t, mr.Exists("orc:"+key), "prefix is applied to stored keys")
		assert.Equal(t, 24*time.Hour, mr.TTL("orc:"+key))
	})

	t.Run("ExpiresAfterADay", func(t *testing.T) {
		cache, mr := newTestCache(t, "")
		key := "audiences::fetch::ttl"
		_, err := cache.Put(ctx, key, []byte(`{}`))
		require.NoError(t, err)

		mr.FastForward(24*time.Hour + time.Second)

		_, hit, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

func TestEstimateFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("PollsUntilReadyWithLinearBackoff", func(t *testing.T) {
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, false, 0), nil).Times(3)
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, true, 4200), nil).Once()

		fetcher, mr, sleeps := newTestFetcher(t, client, 10)
		users, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
		require.NoError(t, err)
		assert.Equal(t, int64(4200), users)

		client.AssertNumberOfCalls(t, "ReachEstimate", 4)
		assert.Equal(t, []time.Duration{testPollBase, 150 * time.Millisecond, 200 * time.Millisecond}, sleeps.all())

		key, err := scheduler.EstimateCacheKey(estimateRequest("2024-03-01").Spec, "2024-03-01")
		require.NoError(t, err)
		assert.True(t, mr.Exists(key))
	})

	t.Run("SameDayCollapsesIntoOneCall", func(t *testing.T) {
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, true, 77), nil)

		fetcher, _, sleeps := newTestFetcher(t, client, 10)
		for i := 0; i < 3; i++ {
			users, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
			require.NoError(t, err)
			assert.Equal(t, int64(77), users)
		}

		client.AssertNumberOfCalls(t, "ReachEstimate", 1)
		assert.Empty(t, sleeps.all())
	})

	t.Run("NextDayIssuesNewCall", func(t *testing.T) {
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, true, 77), nil)

		fetcher, mr, _ := newTestFetcher(t, client, 10)
		_, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
		require.NoError(t, err)
		_, err = fetcher.Fetch(ctx, estimateRequest("2024-03-02"))
		require.NoError(t, err)

		client.AssertNumberOfCalls(t, "ReachEstimate", 2)
		assert.Len(t, mr.Keys(), 2)
	})

	t.Run("UnreadableCacheEntryIsRefetched", func(t *testing.T) {
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, true, 5), nil)

		fetcher, mr, _ := newTestFetcher(t, client, 10)
		key, err := scheduler.EstimateCacheKey(estimateRequest("2024-03-01").Spec, "2024-03-01")
		require.NoError(t, err)
		require.NoError(t, mr.Set(key, "not json"))

		users, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), users)
		client.AssertNumberOfCalls(t, "ReachEstimate", 1)
	})

	t.Run("GivesUpAfterMaxAttempts", func(t *testing.T) {
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, false, 0), nil)

		fetcher, mr, sleeps := newTestFetcher(t, client, 3)
		_, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
		assert.ErrorIs(t, err, scheduler.ErrEstimateNotReady)

		client.AssertNumberOfCalls(t, "ReachEstimate", 3)
		assert.Len(t, sleeps.all(), 2)
		assert.Empty(t, mr.Keys())
	})

	t.Run("CancelledWhileWaiting", func(t *testing.T) {
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(reachEstimate(t, false, 0), nil)

		cache, _ := newTestCache(t, "")
		fetcher := scheduler.NewEstimateFetcher(client, cache, 10, testPollBase, nil,
			scheduler.WithEstimateSleep(func(ctx context.Context, d time.Duration) error {
				return context.DeadlineExceeded
			}))

		_, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
		assert.ErrorIs(t, err, scheduler.ErrEstimateNotReady)
		client.AssertNumberOfCalls(t, "ReachEstimate", 1)
	})

	t.Run("UpstreamErrorIsReturned", func(t *testing.T) {
		apiErr := &services.FacebookAPIError{StatusCode: 400, Code: 100, Message: "invalid spec"}
		client := testingutil.NewMockFacebookClient()
		client.On("ReachEstimate", mock.Anything, "act_1", "tok", mock.Anything).Return(nil, apiErr)

		fetcher, _, _ := newTestFetcher(t, client, 10)
		_, err := fetcher.Fetch(ctx, estimateRequest("2024-03-01"))
		require.Error(t, err)

		var got *services.FacebookAPIError
		assert.True(t, errors.As(err, &got))
		assert.Equal(t, 100, got.Code)
	})
}
