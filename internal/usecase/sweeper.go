package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/port"
)

const defaultSweepLockKey = "code-sweeper"

// CodeSweeper periodically resets expired code slots. Verification re-checks
// expiry on every attempt, so sweeping is housekeeping only.
type CodeSweeper struct {
	users   port.UserRepository
	locker  port.Locker
	lockKey string
	opts    options
}

// NewCodeSweeper builds a sweeper. With a nil locker every instance sweeps on every tick.
func NewCodeSweeper(users port.UserRepository, locker port.Locker, lockKey string, opts ...Option) (*CodeSweeper, error) {
	if users == nil {
		return nil, errors.New("code sweeper: user repository is required")
	}
	if lockKey == "" {
		lockKey = defaultSweepLockKey
	}
	return &CodeSweeper{
		users:   users,
		locker:  locker,
		lockKey: lockKey,
		opts:    buildOptions(opts),
	}, nil
}

// Sweep clears every slot that expired before now.
func (s *CodeSweeper) Sweep(ctx context.Context) (cleared int64, err error) {
	ctx, span := tracer.Start(ctx, "code.sweep")
	defer func() { finishSpan(span, err) }()

	cleared, err = s.users.ClearExpiredCodes(ctx, s.opts.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear expired codes: %w", err)
	}
	s.opts.metrics.Cleared(cleared)
	if cleared > 0 {
		s.opts.logger.Info("expired codes cleared", zap.Int64("count", cleared))
	}
	return cleared, nil
}

// SweepLocked sweeps only if this instance wins the lock for window. The lock is
// left to expire on success so other instances skip the rest of the window.
func (s *CodeSweeper) SweepLocked(ctx context.Context, window time.Duration) (int64, bool, error) {
	if s.locker == nil {
		n, err := s.Sweep(ctx)
		return n, err == nil, err
	}

	release, acquired, err := s.locker.TryLock(ctx, s.lockKey, window)
	if err != nil {
		return 0, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		return 0, false, nil
	}

	n, err := s.Sweep(ctx)
	if err != nil {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			s.opts.logger.Warn("release sweep lock failed", zap.Error(relErr))
		}
		return 0, true, err
	}
	return n, true, nil
}

// Run sweeps every interval until ctx is done. A non-positive interval disables sweeping.
func (s *CodeSweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.opts.logger.Info("code sweeper disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.SweepLocked(ctx, interval); err != nil && ctx.Err() == nil {
				s.opts.logger.Warn("code sweep failed", zap.Error(err))
			}
		}
	}
}
