package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/audience-orchestrator/app/services"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
)

// ErrEstimateNotReady is returned when the API never reports a ready estimate within the attempt budget
var ErrEstimateNotReady = errors.New("reach estimate not ready")

// Estimator is the reach estimate capability of the Graph client
type Estimator interface {
	ReachEstimate(ctx context.Context, adAccountID, accessToken string, spec map[string]any) (*services.ReachEstimate, error)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EstimateRequest is one targeting spec to size for an ad account on a fetch day
type EstimateRequest struct {
	AdAccountID string
	AccessToken string
	Spec        map[string]any
	FetchDate   string
}

// EstimateFetcher is the cache-aware reach estimate client.
// A miss polls the API until the estimate is ready, with a linearly growing delay.
type EstimateFetcher struct {
	estimator   Estimator
	cache       *EstimateCache
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	logger      *zap.Logger
}

// EstimateFetcherOption configures an EstimateFetcher
type EstimateFetcherOption func(*EstimateFetcher)

// WithEstimateSleep replaces the wait between polls
func WithEstimateSleep(fn SleepFunc) EstimateFetcherOption {
	return func(f *EstimateFetcher) {
		f.sleep = fn
	}
}

func NewEstimateFetcher(estimator Estimator, cache *EstimateCache, maxAttempts int, baseDelay time.Duration, logger *zap.Logger, opts ...EstimateFetcherOption) *EstimateFetcher {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = utils.EstimatePollBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &EstimateFetcher{
		estimator:   estimator,
		cache:       cache,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the audience size of the request's spec on its fetch day
func (f *EstimateFetcher) Fetch(ctx context.Context, req EstimateRequest) (int64, error) {
	key, err := EstimateCacheKey(req.Spec, req.FetchDate)
	if err != nil {
		return 0, err
	}
	log := f.logger.With(zap.String("ad_account_id", req.AdAccountID), zap.String("cache_key", key))

	raw, hit, err := f.cache.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if hit {
		cached, parseErr := services.ParseReachEstimate(raw)
		if parseErr == nil {
			estimateCacheTotal.WithLabelValues("hit").Inc()
			return cached.Users, nil
		}
		log.Warn("Discarding unreadable cached estimate", zap.Error(parseErr))
	}
	estimateCacheTotal.WithLabelValues("miss").Inc()

	multiplier := 1.0
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		est, err := f.estimator.ReachEstimate(ctx, req.AdAccountID, req.AccessToken, req.Spec)
		if err != nil {
			return 0, err
		}
		if est.Ready {
			estimatePollsTotal.WithLabelValues("true").Inc()
			if _, err := f.cache.Put(ctx, key, est.Raw); err != nil {
				log.Warn("Failed to cache ready estimate", zap.Error(err))
			}
			return est.Users, nil
		}
		estimatePollsTotal.WithLabelValues("false").Inc()

		if attempt == f.maxAttempts {
			break
		}
		delay := utils.DurationMultiply(f.baseDelay, multiplier)
		log.Debug("Estimate not ready, waiting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		if err := f.sleep(ctx, delay); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEstimateNotReady, err)
		}
		multiplier += utils.EstimatePollMultiplierStep
	}
	return 0, fmt.Errorf("%w after %d attempts", ErrEstimateNotReady, f.maxAttempts)
}
