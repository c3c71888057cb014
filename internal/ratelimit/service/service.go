package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks WindowStore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"safereport/internal/ratelimit/metrics"
	"safereport/internal/ratelimit/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/platform/circuit"
)

// WindowStore is a fixed-window counter keyed by string.
type WindowStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	Reset(ctx context.Context, key string) error
	GetCurrentCount(ctx context.Context, key string) (int, error)
}

// Service throttles write actions per user.
type Service struct {
	windows  WindowStore
	fallback WindowStore
	breaker  *circuit.Breaker
	policies map[models.Action]models.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPolicy overrides the budget for one action.
func WithPolicy(action models.Action, policy models.Policy) Option {
	return func(s *Service) {
		s.policies[action] = policy
	}
}

// WithFallback keeps limiting on a local store while the primary (Redis) is
// failing. Limits become per-instance until the breaker closes.
func WithFallback(store WindowStore, breaker *circuit.Breaker) Option {
	return func(s *Service) {
		s.fallback = store
		s.breaker = breaker
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(windows WindowStore, opts ...Option) (*Service, error) {
	if windows == nil {
		return nil, errors.New("window store is required")
	}
	s := &Service{
		windows:  windows,
		policies: models.DefaultPolicies(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback != nil && s.breaker == nil {
		s.breaker = circuit.New("ratelimit")
	}
	return s, nil
}

// Check consumes one unit of the action's budget for userID.
//
// Errors: RateLimitExceeded with minutes until the window resets.
func (s *Service) Check(ctx context.Context, userID id.UserID, action models.Action) (*models.Result, error) {
	policy, ok := s.policies[action]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no rate limit policy for %s", action))
	}
	key := models.Key(action, userID.String())

	res, err := s.allow(ctx, key, policy)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
	}
	if !res.Allowed {
		minutes := res.MinutesUntilReset(s.now())
		s.metrics.IncrementDenied(string(action))
		if s.logger != nil {
			s.logger.WarnContext(ctx, "rate limit exceeded",
				"user_id", userID.String(),
				"action", string(action),
				"minutes_until_reset", minutes,
			)
		}
		return res, dErrors.RateLimitExceeded(minutes)
	}
	s.metrics.IncrementAllowed(string(action))
	return res, nil
}

func (s *Service) allow(ctx context.Context, key string, policy models.Policy) (*models.Result, error) {
	if s.breaker == nil {
		return s.windows.Allow(ctx, key, policy.Limit, policy.Window)
	}
	if s.breaker.IsOpen() {
		// Try the primary so the breaker can close; serve from fallback
		// until it does.
		if res, err := s.windows.Allow(ctx, key, policy.Limit, policy.Window); err == nil {
			if usePrimary, change := s.breaker.RecordSuccess(); usePrimary {
				s.logBreaker(ctx, change)
				return res, nil
			}
		} else {
			s.breaker.RecordFailure()
		}
		return s.fallback.Allow(ctx, key, policy.Limit, policy.Window)
	}

	res, err := s.windows.Allow(ctx, key, policy.Limit, policy.Window)
	if err == nil {
		s.breaker.RecordSuccess()
		return res, nil
	}
	useFallback, change := s.breaker.RecordFailure()
	s.logBreaker(ctx, change)
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "rate limit store failed", "error", err, "fallback", useFallback)
	}
	if !useFallback {
		return nil, err
	}
	return s.fallback.Allow(ctx, key, policy.Limit, policy.Window)
}

func (s *Service) logBreaker(ctx context.Context, change circuit.StateChange) {
	if s.logger == nil {
		return
	}
	switch {
	case change.Opened:
		s.logger.WarnContext(ctx, "rate limit store degraded, using in-memory fallback")
	case change.Closed:
		s.logger.InfoContext(ctx, "rate limit store recovered")
	}
}

// Reset clears a user's window for action. Operator use only.
func (s *Service) Reset(ctx context.Context, userID id.UserID, action models.Action) error {
	key := models.Key(action, userID.String())
	if err := s.windows.Reset(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate limit")
	}
	if s.fallback != nil {
		_ = s.fallback.Reset(ctx, key)
	}
	s.metrics.IncrementResets()
	if s.logger != nil {
		s.logger.InfoContext(ctx, "rate limit reset", "user_id", userID.String(), "action", string(action))
	}
	return nil
}

// Usage returns the count in the live window.
func (s *Service) Usage(ctx context.Context, userID id.UserID, action models.Action) (int, error) {
	n, err := s.windows.GetCurrentCount(ctx, models.Key(action, userID.String()))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read rate limit usage")
	}
	return n, nil
}
