package stockledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/stockledger/store"
)

// atomically runs fn as one atomic unit, retrying the whole body with
// exponential backoff while the store reports a conflict. It returns the
// number of attempts made.
func (l *Ledger) atomically(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryInitial
	b.MaxInterval = l.retryMax

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := l.store.Atomic(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, ErrConflict) {
			return struct{}{}, backoff.Permanent(err)
		}

		l.logger.Debug("atomic unit conflicted",
			"op", op,
			"attempt", attempts,
			"error", err,
		)
		l.plugins.EmitTransactionConflict(ctx, op, attempts, err)
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(l.maxAttempts)),
	)

	if err != nil && errors.Is(err, ErrConflict) {
		l.logger.Warn("retry budget exhausted", "op", op, "attempts", attempts)
		return attempts, fmt.Errorf("stockledger: %s: gave up after %d attempts: %w", op, attempts, err)
	}
	return attempts, err
}
