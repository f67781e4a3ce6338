package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gw(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000)) }

func TestSummarizeRewards(t *testing.T) {
	rows := [][]*big.Int{
		{gw(1), gw(4), gw(10)},
		{gw(3), gw(2), gw(20)},
		{gw(2), nil},
	}
	st := SummarizeRewards(rows, []int{50, 95, 99})

	require.Len(t, st, 3)
	assert.Zero(t, gw(1).Cmp(st[50].Min))
	assert.Zero(t, gw(2).Cmp(st[50].Avg))
	assert.Zero(t, gw(3).Cmp(st[50].Max))
	assert.Zero(t, gw(2).Cmp(st[95].Min))
	assert.Zero(t, gw(3).Cmp(st[95].Avg))
	assert.Zero(t, gw(15).Cmp(st[99].Avg))
}

func TestSummarizeRewardsEmptyColumn(t *testing.T) {
	st := SummarizeRewards([][]*big.Int{{gw(1)}}, []int{50, 99})
	assert.Zero(t, st[99].Min.Sign())
	assert.Zero(t, st[99].Avg.Sign())
}

type fakeFeeHistory struct {
	fh  *ethereum.FeeHistory
	err error
	got []float64
}

func (f *fakeFeeHistory) FeeHistory(_ context.Context, n uint64, _ *big.Int, p []float64) (*ethereum.FeeHistory, error) {
	f.got = p
	return f.fh, f.err
}

func TestFeeHistoryStats(t *testing.T) {
	r := &fakeFeeHistory{fh: &ethereum.FeeHistory{
		Reward:  [][]*big.Int{{gw(1), gw(5)}, {gw(3), gw(7)}},
		BaseFee: []*big.Int{gw(10), gw(11), gw(12)},
	}}
	st, next, err := FeeHistoryStats(context.Background(), r, 2, []int{50, 95})
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 95}, r.got)
	assert.Zero(t, gw(12).Cmp(next))
	assert.Zero(t, gw(6).Cmp(st[95].Avg))

	_, _, err = FeeHistoryStats(context.Background(), &fakeFeeHistory{fh: &ethereum.FeeHistory{}}, 0, nil)
	assert.Error(t, err)
	_, _, err = FeeHistoryStats(context.Background(), &fakeFeeHistory{err: errors.New("boom")}, 0, nil)
	assert.Error(t, err)
}

func TestCoinbasePayments(t *testing.T) {
	cb := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	txs := []*types.Transaction{
		types.NewTx(&types.LegacyTx{To: &cb, Value: big.NewInt(5)}),
		types.NewTx(&types.LegacyTx{To: &cb, Value: big.NewInt(0)}),
		types.NewTx(&types.LegacyTx{To: &other, Value: big.NewInt(9)}),
		types.NewTx(&types.LegacyTx{Value: big.NewInt(7), Data: []byte{0x60, 0x41, 0xff}}),
		types.NewTx(&types.LegacyTx{Value: big.NewInt(8), Data: []byte{0x60, 0x00}}),
	}
	got := CoinbasePayments(cb, txs)
	require.Len(t, got, 2)
	assert.Equal(t, int64(5), got[0].Int64())
	assert.Equal(t, int64(7), got[1].Int64())
}

func TestSummarizePayments(t *testing.T) {
	var vals []*big.Int
	for i := int64(1); i <= 100; i++ {
		vals = append(vals, big.NewInt(101-i))
	}
	s := SummarizePayments(vals)
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, int64(5050), s.Sum.Int64())
	assert.Equal(t, int64(100), s.Max.Int64())
	assert.Equal(t, int64(50), s.P50.Int64())
	assert.Equal(t, int64(95), s.P95.Int64())
	assert.Equal(t, int64(99), s.P99.Int64())

	empty := SummarizePayments(nil)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.P99.Sign())
}

func TestWithRetryBacksOffOnRateLimit(t *testing.T) {
	calls := 0
	v, err := withRetry(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("429 Too Many Requests")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("not found")
	})
	assert.EqualError(t, err, "not found")
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := withRetry(ctx, func(context.Context) (int, error) {
		return 0, errors.New("code -32005: limit exceeded")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimitLookups(t *testing.T) {
	c := &Client{}
	c.LimitLookups(5)
	require.NotNil(t, c.lim)
	assert.Equal(t, 5, c.lim.Burst())
	c.LimitLookups(0)
	assert.Nil(t, c.lim)
}
