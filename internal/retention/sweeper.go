package retention

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain/repositories"
)

const (
	defaultInterval     = 30 * time.Minute
	defaultInitialDelay = time.Minute
	sweepTimeout        = 5 * time.Minute
)

// Sweeper periodically deletes emergency call records older than the
// retention window.
type Sweeper struct {
	records      repositories.CallRecordRepository
	retention    time.Duration
	interval     time.Duration
	initialDelay time.Duration
	clock        clock.Clock
	logger       *zap.Logger
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithClock overrides the clock used for scheduling and cutoffs
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) { s.clock = c }
}

// WithInterval sets how often sweeps run after the first one
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithInitialDelay sets how long to wait before the first sweep
func WithInitialDelay(d time.Duration) Option {
	return func(s *Sweeper) { s.initialDelay = d }
}

// NewSweeper creates a retention sweeper. A retention of zero or less
// disables sweeping.
func NewSweeper(records repositories.CallRecordRepository, retention time.Duration, logger *zap.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		records:      records,
		retention:    retention,
		interval:     defaultInterval,
		initialDelay: defaultInitialDelay,
		clock:        clock.New(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on schedule until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	if s.retention <= 0 {
		s.logger.Info("Call record retention disabled")
		return
	}

	s.logger.Info("Call record retention started",
		zap.Duration("retention", s.retention),
		zap.Duration("interval", s.interval))

	initial := s.clock.Timer(s.initialDelay)
	defer initial.Stop()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Call record retention stopped")
			return
		case <-initial.C:
			s.Sweep(ctx)
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes expired records once and returns how many were removed
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cutoff := s.clock.Now().Add(-s.retention)
	removed, err := s.records.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to delete expired call records", zap.Error(err))
		return 0
	}

	s.logger.Info("Expired call records deleted",
		zap.Time("cutoff", cutoff),
		zap.Int64("removed", removed))
	return removed
}
