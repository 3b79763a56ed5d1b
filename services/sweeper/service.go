package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"go.uber.org/zap"
)

type TokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
	PurgeExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

type CounterPurger interface {
	PurgeCountersBefore(ctx context.Context, day time.Time) (int64, error)
}

type Result struct {
	ResetTokens        int64
	VerificationTokens int64
	Counters           int64
}

// Service removes expired tokens and stale identifier counters on a fixed
// interval.
type Service struct {
	tokens   TokenPurger
	counters CounterPurger
	clock    clock.Clock
	logger   *logging.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(tokens TokenPurger, counters CounterPurger, clk clock.Clock, logger *logging.Service) *Service {
	return &Service{
		tokens:   tokens,
		counters: counters,
		clock:    clock.Or(clk),
		logger:   logger.Named("sweeper"),
	}
}

// RunOnce performs a single sweep. Each step runs even if an earlier one
// failed; the errors are joined.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	var res Result
	var errs []error

	if s.tokens != nil {
		n, err := s.tokens.PurgeExpiredResetTokens(ctx, now)
		if err != nil {
			errs = append(errs, err)
		}
		res.ResetTokens = n

		n, err = s.tokens.PurgeExpiredVerificationTokens(ctx, now)
		if err != nil {
			errs = append(errs, err)
		}
		res.VerificationTokens = n
	}

	if s.counters != nil {
		// yesterday's counter is kept
		n, err := s.counters.PurgeCountersBefore(ctx, now.AddDate(0, 0, -1))
		if err != nil {
			errs = append(errs, err)
		}
		res.Counters = n
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("sweep finished with errors", zap.Error(err))
		return res, fmt.Errorf("sweep failed: %w", err)
	}

	s.logger.Debug("sweep finished",
		zap.Int64("reset_tokens_removed", res.ResetTokens),
		zap.Int64("verification_tokens_removed", res.VerificationTokens),
		zap.Int64("counters_removed", res.Counters))
	return res, nil
}

// Start launches the background sweep. Calling Start on a running sweeper
// does nothing.
func (s *Service) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.RunOnce(ctx)
			}
		}
	}(s.done)

	s.logger.Info("sweeper started", zap.Duration("interval", interval))
}

// Stop cancels the worker and waits for it to exit or ctx to end.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
