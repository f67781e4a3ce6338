package bundlecore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

var (
	testChainID  = big.NewInt(11155111)
	testTarget   = common.HexToAddress("0xB3F33A179BD1Ab0917b0e994eAF7444B078677e6")
	testSelector = []byte{0xa8, 0xea, 0xc4, 0x92}
	gwei         = big.NewInt(1_000_000_000)
)

func gweis(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), gwei) }

func testLogger() zerolog.Logger { return zerolog.Nop() }

func assertBig(t *testing.T, want, got *big.Int) {
	t.Helper()
	if assert.NotNil(t, got) {
		assert.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
	}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

// triggerTx signs a dynamic-fee call to `to` with the given call data.
func triggerTx(t *testing.T, key *ecdsa.PrivateKey, to common.Address, data []byte, feeCap, tip *big.Int) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     7,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       60000,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(testChainID), key)
	require.NoError(t, err)
	return signed
}

type keySigner struct{ key *ecdsa.PrivateKey }

func (s keySigner) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

func (s keySigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(tx.ChainId()), s.key)
}

type failingSigner struct{}

func (failingSigner) Address() common.Address { return common.Address{} }
func (failingSigner) SignTx(*types.Transaction) (*types.Transaction, error) {
	return nil, errors.New("hsm offline")
}

type fakeSub struct {
	once sync.Once
	errc chan error
}

func newFakeSub() *fakeSub { return &fakeSub{errc: make(chan error, 1)} }

func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errc) }) }
func (s *fakeSub) Err() <-chan error { return s.errc }

type fakeChain struct {
	mu         sync.Mutex
	txs        map[common.Hash]*types.Transaction
	mined      map[common.Hash]bool
	head       *types.Header
	nonce      uint64
	subscribed chan chan<- common.Hash
	sub        *fakeSub
	subErr     error
	lookups    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:        make(map[common.Hash]*types.Transaction),
		mined:      make(map[common.Hash]bool),
		head:       &types.Header{Number: big.NewInt(100), Time: uint64(time.Now().Unix())},
		nonce:      3,
		subscribed: make(chan chan<- common.Hash, 1),
		sub:        newFakeSub(),
	}
}

func (f *fakeChain) add(tx *types.Transaction) {
	f.mu.Lock()
	f.txs[tx.Hash()] = tx
	f.mu.Unlock()
}

func (f *fakeChain) addMined(tx *types.Transaction) {
	f.mu.Lock()
	f.txs[tx.Hash()] = tx
	f.mined[tx.Hash()] = true
	f.mu.Unlock()
}

func (f *fakeChain) SubscribePendingTransactions(_ context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subscribed <- ch
	return f.sub, nil
}

func (f *fakeChain) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	tx, ok := f.txs[h]
	if !ok {
		return nil, false, errors.New("not found")
	}
	return tx, !f.mined[h], nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.CopyHeader(f.head), nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(testChainID), nil
}

func (f *fakeChain) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

type fakeSubmission struct {
	hash  string
	res   flashbots.Resolution
	err   error
	block bool // wait until ctx is done
}

func (s *fakeSubmission) BundleHash() string { return s.hash }

func (s *fakeSubmission) Wait(ctx context.Context) (flashbots.Resolution, error) {
	if s.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.res, s.err
}

type fakeRelay struct {
	mu       sync.Mutex
	sim      *flashbots.SimResult
	simErr   error
	sendErr  error
	sub      *fakeSubmission
	simCalls [][]string
	sent     []flashbots.BundleRequest
	gate     chan struct{} // when set, SendBundle blocks until closed
}

func (r *fakeRelay) SimulateBundle(_ context.Context, raw []string, _ uint64) (*flashbots.SimResult, error) {
	r.mu.Lock()
	r.simCalls = append(r.simCalls, raw)
	r.mu.Unlock()
	if r.simErr != nil {
		return nil, r.simErr
	}
	if r.sim != nil {
		return r.sim, nil
	}
	return &flashbots.SimResult{OK: true}, nil
}

func (r *fakeRelay) SendBundle(ctx context.Context, req flashbots.BundleRequest) (flashbots.Submission, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.sent = append(r.sent, req)
	r.mu.Unlock()
	if r.sendErr != nil {
		return nil, r.sendErr
	}
	if r.sub != nil {
		return r.sub, nil
	}
	return &fakeSubmission{hash: "0xbundle", res: flashbots.BundleIncluded}, nil
}

func (r *fakeRelay) simCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.simCalls)
}

func (r *fakeRelay) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type memSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *memSink) Save(_ context.Context, r Result) error {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	return nil
}

func (s *memSink) all() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}
