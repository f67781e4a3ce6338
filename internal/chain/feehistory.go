package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// FeeHistoryReader is satisfied by *ethclient.Client.
type FeeHistoryReader interface {
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
}

// RewardStats aggregates min/avg/max priority fee for one percentile.
type RewardStats struct {
	Min *big.Int
	Avg *big.Int
	Max *big.Int
}

// FeeHistoryStats returns reward stats over the last blocks for each
// percentile, plus the base fee the node projects for the next block.
func FeeHistoryStats(ctx context.Context, r FeeHistoryReader, blocks int, percentiles []int) (map[int]RewardStats, *big.Int, error) {
	if blocks <= 0 {
		blocks = 100
	}
	if len(percentiles) == 0 {
		percentiles = []int{50, 95, 99}
	}
	pf := make([]float64, len(percentiles))
	for i, p := range percentiles {
		pf[i] = float64(p)
	}
	fh, err := r.FeeHistory(ctx, uint64(blocks), nil, pf)
	if err != nil {
		return nil, nil, err
	}
	if len(fh.Reward) == 0 {
		return nil, nil, errors.New("feeHistory: empty reward")
	}
	var next *big.Int
	if n := len(fh.BaseFee); n > 0 && fh.BaseFee[n-1] != nil {
		next = new(big.Int).Set(fh.BaseFee[n-1])
	}
	return SummarizeRewards(fh.Reward, percentiles), next, nil
}

// SummarizeRewards folds per-block reward rows into per-percentile stats.
// Column j of every row belongs to percentiles[j].
func SummarizeRewards(rows [][]*big.Int, percentiles []int) map[int]RewardStats {
	res := make(map[int]RewardStats, len(percentiles))
	counts := make(map[int]int64, len(percentiles))
	for _, p := range percentiles {
		res[p] = RewardStats{Avg: big.NewInt(0), Max: big.NewInt(0)}
	}
	for _, row := range rows {
		for j := 0; j < len(percentiles) && j < len(row); j++ {
			v := row[j]
			if v == nil {
				continue
			}
			p := percentiles[j]
			st := res[p]
			if st.Min == nil || v.Cmp(st.Min) < 0 {
				st.Min = new(big.Int).Set(v)
			}
			if v.Cmp(st.Max) > 0 {
				st.Max = new(big.Int).Set(v)
			}
			st.Avg.Add(st.Avg, v)
			counts[p]++
			res[p] = st
		}
	}
	for p, st := range res {
		if n := counts[p]; n > 0 {
			st.Avg.Div(st.Avg, big.NewInt(n))
		}
		if st.Min == nil {
			st.Min = big.NewInt(0)
		}
		res[p] = st
	}
	return res
}
