package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005") || strings.Contains(s, "429")
}

// withRetry repeats fn while the node answers with a rate-limit error, doubling
// the backoff each time. Other errors are returned at once.
func withRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	backoff := initialBackoff
	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err = fn(ctx)
		if err == nil || !isRateLimitError(err) || attempt == maxAttempts {
			return v, err
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return v, ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
	return v, err
}

type lookup struct {
	tx      *types.Transaction
	pending bool
}

// TransactionByHash fetches a mempool or mined transaction, backing off when
// the node rate-limits the per-hash lookups the watcher fans out.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if c.lim != nil {
		if err := c.lim.Wait(ctx); err != nil {
			return nil, false, err
		}
	}
	r, err := withRetry(ctx, func(ctx context.Context) (lookup, error) {
		tx, pending, err := c.Client.TransactionByHash(ctx, hash)
		return lookup{tx, pending}, err
	})
	return r.tx, r.pending, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withRetry(ctx, func(ctx context.Context) (uint64, error) {
		return c.Client.PendingNonceAt(ctx, account)
	})
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withRetry(ctx, func(ctx context.Context) (*types.Header, error) {
		return c.Client.HeaderByNumber(ctx, number)
	})
}
