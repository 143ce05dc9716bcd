package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/internal/repository"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

// CounterStore hands out per-key sequence numbers inside the caller's transaction.
type CounterStore interface {
	NextSequence(ctx context.Context, q sqlx.ExtContext, year int, programCode string) (int, error)
}

// RetryPolicy bounds how often an allocation is retried after a NIM conflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns five attempts with a 10ms base delay capped at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
}

// Backoff returns the delay before the given retry (1 = first retry), doubling from
// BaseDelay and capped at MaxDelay.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if p.BaseDelay <= 0 || retry < 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return p
}

// Allocation describes an assigned NIM.
type Allocation struct {
	NIM         string
	Year        int
	ProgramCode string
	Sequence    int
	Attempts    int
}

// FormatNIM renders year, program code and sequence as a NIM. The sequence is
// zero-padded to four digits and grows wider past 9999 instead of wrapping.
func FormatNIM(year int, programCode string, seq int) string {
	return fmt.Sprintf("%d%s%0*d", year, programCode, models.NIMSequenceWidth, seq)
}

// NIMAllocator draws sequences from the counter store and assigns the resulting NIM,
// retrying with a fresh sequence when the NIM turns out to be taken.
type NIMAllocator struct {
	counters CounterStore
	policy   RetryPolicy
	metrics  *MetricsService
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewNIMAllocator constructs an allocator.
func NewNIMAllocator(counters CounterStore, policy RetryPolicy, metrics *MetricsService, logger *zap.Logger) *NIMAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NIMAllocator{
		counters: counters,
		policy:   policy.normalized(),
		metrics:  metrics,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Allocate draws sequences for (year, programCode) and calls assign with each formatted
// NIM until assign succeeds. assign reporting repository.ErrDuplicateNIM triggers a retry;
// every other error is returned as is. Numbers drawn for failed attempts are not reused.
func (a *NIMAllocator) Allocate(ctx context.Context, q sqlx.ExtContext, year int, programCode string, assign func(nim string) error) (*Allocation, error) {
	code := models.NormalizeProgramCode(programCode)
	var lastErr error

	for attempt := 1; attempt <= a.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrStoreUnavailable, "nim allocation cancelled")
		}

		seq, err := a.counters.NextSequence(ctx, q, year, code)
		if err != nil {
			if errors.Is(err, repository.ErrInvalidCounterKey) {
				return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid nim counter key")
			}
			return nil, storeError(err, "failed to draw nim sequence")
		}

		nim := FormatNIM(year, code, seq)
		if seq > models.MaxPaddedSequence {
			a.logger.Warn("nim sequence exceeds padded width",
				zap.Int("year", year), zap.String("program_code", code), zap.Int("sequence", seq), zap.String("nim", nim))
			a.metrics.RecordNIMCapacityWarning(code)
		}

		err = assign(nim)
		if err == nil {
			a.metrics.RecordNIMAllocation(code, attempt)
			return &Allocation{NIM: nim, Year: year, ProgramCode: code, Sequence: seq, Attempts: attempt}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateNIM) {
			return nil, err
		}

		lastErr = err
		a.metrics.RecordNIMConflict(code)
		a.logger.Warn("nim already taken, drawing a new sequence",
			zap.String("nim", nim), zap.Int("attempt", attempt), zap.Int("max_attempts", a.policy.MaxAttempts))

		if attempt < a.policy.MaxAttempts {
			if err := a.sleep(ctx, a.policy.Backoff(attempt)); err != nil {
				return nil, appErrors.WrapAs(err, appErrors.ErrStoreUnavailable, "nim allocation cancelled")
			}
		}
	}

	a.metrics.RecordNIMExhausted(code)
	a.logger.Error("nim allocation exhausted",
		zap.Int("year", year), zap.String("program_code", code), zap.Int("attempts", a.policy.MaxAttempts))
	return nil, appErrors.WrapAs(lastErr, appErrors.ErrAllocationExhausted, "")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
