package flashbots

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainReader is the slice of an execution client needed to resolve a bundle.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Resolution mirrors the relay resolution codes.
type Resolution int

const (
	BundleIncluded              Resolution = 0
	BlockPassedWithoutInclusion Resolution = 1
	AccountNonceTooHigh         Resolution = 2
)

func (r Resolution) String() string {
	switch r {
	case BundleIncluded:
		return "BundleIncluded"
	case BlockPassedWithoutInclusion:
		return "BlockPassedWithoutInclusion"
	case AccountNonceTooHigh:
		return "AccountNonceTooHigh"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// Submission is an accepted bundle whose fate is not yet known.
type Submission interface {
	BundleHash() string
	Wait(ctx context.Context) (Resolution, error)
}

type bundleSubmission struct {
	hash    string
	chain   ChainReader
	txs     []*types.Transaction
	senders []common.Address
	target  uint64
	poll    time.Duration
}

func newSubmission(hash string, chain ChainReader, txs []*types.Transaction, target uint64, poll time.Duration) *bundleSubmission {
	senders := make([]common.Address, len(txs))
	for i, tx := range txs {
		if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
			senders[i] = from
		}
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &bundleSubmission{hash: hash, chain: chain, txs: txs, senders: senders, target: target, poll: poll}
}

func (s *bundleSubmission) BundleHash() string { return s.hash }

// Wait polls the chain until the target block is mined. Before that, a sender
// nonce that moved past its bundle tx means the bundle can no longer land.
// After it, the bundle is included only when every tx sits in the target block.
func (s *bundleSubmission) Wait(ctx context.Context) (Resolution, error) {
	if s.chain == nil {
		return 0, errors.New("no chain reader")
	}
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for {
		head, err := s.chain.HeaderByNumber(ctx, nil)
		if err == nil && head != nil {
			if head.Number.Uint64() >= s.target {
				return s.inclusion(ctx), nil
			}
			if s.nonceTooHigh(ctx) {
				return AccountNonceTooHigh, nil
			}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.C:
		}
	}
}

func (s *bundleSubmission) inclusion(ctx context.Context) Resolution {
	for _, tx := range s.txs {
		rcpt, err := s.chain.TransactionReceipt(ctx, tx.Hash())
		if err != nil || rcpt == nil || rcpt.BlockNumber == nil || rcpt.BlockNumber.Uint64() != s.target {
			return BlockPassedWithoutInclusion
		}
	}
	return BundleIncluded
}

func (s *bundleSubmission) nonceTooHigh(ctx context.Context) bool {
	for i, tx := range s.txs {
		if s.senders[i] == (common.Address{}) {
			continue
		}
		n, err := s.chain.NonceAt(ctx, s.senders[i], nil)
		if err != nil {
			continue
		}
		if n > tx.Nonce() {
			return true
		}
	}
	return false
}
