package chain

import (
	"bytes"
	"context"
	"math"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockReader is satisfied by *ethclient.Client.
type BlockReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// BribeSummary holds stats over direct payments to block builders.
type BribeSummary struct {
	Count int
	Sum   *big.Int
	Max   *big.Int
	P50   *big.Int
	P95   *big.Int
	P99   *big.Int
}

// ScanCoinbasePayments walks the last blocks and collects ETH paid to the
// block's coinbase, either by a plain transfer or by a self-destructing
// creation whose init code reads COINBASE (0x41 0xff).
func ScanCoinbasePayments(ctx context.Context, r BlockReader, blocks int) ([]*big.Int, error) {
	if blocks <= 0 {
		blocks = 100
	}
	head, err := r.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []*big.Int
	for i := 0; i < blocks; i++ {
		n := new(big.Int).Sub(head.Number, big.NewInt(int64(i)))
		if n.Sign() <= 0 {
			break
		}
		b, err := r.BlockByNumber(ctx, n)
		if err != nil || b == nil {
			continue
		}
		out = append(out, CoinbasePayments(b.Coinbase(), b.Transactions())...)
	}
	return out, nil
}

// CoinbasePayments returns the values of txs that pay coinbase.
func CoinbasePayments(coinbase common.Address, txs []*types.Transaction) []*big.Int {
	var out []*big.Int
	for _, tx := range txs {
		v := tx.Value()
		if v == nil || v.Sign() <= 0 {
			continue
		}
		if tx.To() == nil {
			if bytes.Contains(tx.Data(), []byte{0x41, 0xff}) {
				out = append(out, new(big.Int).Set(v))
			}
			continue
		}
		if *tx.To() == coinbase {
			out = append(out, new(big.Int).Set(v))
		}
	}
	return out
}

func quantile(sorted []*big.Int, q float64) *big.Int {
	if len(sorted) == 0 {
		return big.NewInt(0)
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return new(big.Int).Set(sorted[idx])
}

// SummarizePayments aggregates payment values.
func SummarizePayments(vals []*big.Int) BribeSummary {
	s := BribeSummary{Count: len(vals), Sum: big.NewInt(0), Max: big.NewInt(0)}
	sorted := make([]*big.Int, len(vals))
	for i, v := range vals {
		s.Sum.Add(s.Sum, v)
		if v.Cmp(s.Max) > 0 {
			s.Max = new(big.Int).Set(v)
		}
		sorted[i] = v
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	s.P50 = quantile(sorted, 0.50)
	s.P95 = quantile(sorted, 0.95)
	s.P99 = quantile(sorted, 0.99)
	return s
}
