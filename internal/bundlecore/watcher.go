package bundlecore

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// ChainClient is the node access the watcher needs.
type ChainClient interface {
	SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type State string

const (
	StateIdle      State = "Idle"
	StateMatching  State = "Matching"
	StateBuilding  State = "Building"
	StateSubmitted State = "Submitted"
	StateResolved  State = "Resolved"
)

type Mode string

const (
	ModeSingleShot Mode = "single-shot"
	ModeContinuous Mode = "continuous"
)

// ParseMode accepts single-shot (default) and continuous.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSingleShot:
		return ModeSingleShot, nil
	case ModeContinuous:
		return ModeContinuous, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

const seenLimit = 10000

type WatcherConfig struct {
	Matcher        TriggerMatcher
	CompanionTo    common.Address
	CompanionData  []byte
	CompanionValue *big.Int
	GasLimit       uint64
	Timeout        time.Duration // bundle validity window
	Grace          time.Duration // extra time an attempt gets past its window
	Mode           Mode
	Workers        int
	HashBuffer     int
	ChainID        *big.Int // queried from the node when nil
}

// AttemptView is the status-page view of a live attempt.
type AttemptView struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	TargetBlock uint64 `json:"targetBlock"`
	MaxTime     uint64 `json:"maxTimestamp"`
}

// Snapshot is a point-in-time view of the watcher.
type Snapshot struct {
	State    State        `json:"state"`
	Mode     Mode         `json:"mode"`
	Live     *AttemptView `json:"live,omitempty"`
	Last     *Result      `json:"last,omitempty"`
	Seen     uint64       `json:"seen"`
	Matched  uint64       `json:"matched"`
	Rejected uint64       `json:"rejected"`
}

// Watcher drives the mempool -> bundle -> outcome pipeline.
type Watcher struct {
	chain   ChainClient
	signer  Signer
	gas     GasPolicy
	asm     *Assembler
	tracker *Tracker
	cfg     WatcherConfig
	log     zerolog.Logger

	seenMu sync.Mutex
	seen   map[common.Hash]struct{}

	mu    sync.RWMutex
	state State
	live  *AttemptView
	last  *Result

	nSeen, nMatched, nRejected atomic.Uint64
}

func NewWatcher(chain ChainClient, signer Signer, gas GasPolicy, asm *Assembler, tracker *Tracker, cfg WatcherConfig, log zerolog.Logger) *Watcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.HashBuffer <= 0 {
		cfg.HashBuffer = 4096
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSingleShot
	}
	return &Watcher{
		chain:   chain,
		signer:  signer,
		gas:     gas,
		asm:     asm,
		tracker: tracker,
		cfg:     cfg,
		log:     log.With().Str("component", "watcher").Logger(),
		seen:    make(map[common.Hash]struct{}),
		state:   StateIdle,
	}
}

type attemptDone struct {
	result *Result // nil when the attempt never reached the relay
}

// Run subscribes to pending transactions and handles triggers until ctx is
// cancelled or, in single-shot mode, the first attempt resolves. A live attempt
// is allowed to finish after cancellation.
func (w *Watcher) Run(ctx context.Context) (*Result, error) {
	if w.cfg.ChainID == nil {
		id, err := w.chain.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
		w.cfg.ChainID = id
	}

	hashes := make(chan common.Hash, w.cfg.HashBuffer)
	sub, err := w.chain.SubscribePendingTransactions(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("subscribe pending: %w", err)
	}
	defer sub.Unsubscribe()
	w.log.Info().
		Str("target", w.cfg.Matcher.Target.Hex()).
		Str("selector", txAsHex(w.cfg.Matcher.Selector)).
		Str("mode", string(w.cfg.Mode)).
		Int("workers", w.cfg.Workers).
		Msg("watching mempool")

	wctx, stopWorkers := context.WithCancel(ctx)
	matches := make(chan *ObservedTransaction)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.worker(wctx, hashes, matches)
		}()
	}
	defer func() {
		stopWorkers()
		wg.Wait()
	}()

	var (
		done   chan attemptDone
		last   *Result
		subErr = sub.Err()
	)
	drain := func() {
		if done != nil {
			w.log.Info().Msg("waiting for in-flight attempt")
			if d := <-done; d.result != nil {
				last = d.result
			}
			done = nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			stopWorkers()
			drain()
			return last, ctx.Err()

		case err, ok := <-subErr:
			if !ok {
				subErr = nil
				continue
			}
			stopWorkers()
			drain()
			return last, fmt.Errorf("pending subscription: %w", err)

		case tx := <-matches:
			w.nMatched.Add(1)
			if done != nil {
				w.nRejected.Add(1)
				w.log.Warn().Err(ErrAttemptInFlight).Str("hash", tx.Hash.Hex()).Msg("trigger ignored")
				continue
			}
			w.setState(StateMatching)
			w.log.Info().Str("hash", tx.Hash.Hex()).Str("from", tx.From.Hex()).Msg("trigger matched")
			done = make(chan attemptDone, 1)
			go func(ch chan<- attemptDone) {
				ch <- attemptDone{result: w.runAttempt(ctx, tx)}
			}(done)

		case d := <-done:
			done = nil
			if d.result == nil {
				w.setState(StateIdle)
				continue
			}
			last = d.result
			if w.cfg.Mode == ModeSingleShot {
				return last, nil
			}
			w.setState(StateIdle)
		}
	}
}

func (w *Watcher) worker(ctx context.Context, hashes <-chan common.Hash, matches chan<- *ObservedTransaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-hashes:
			if !w.markSeen(h) {
				continue
			}
			w.nSeen.Add(1)
			tx, pending, err := w.chain.TransactionByHash(ctx, h)
			if err != nil || tx == nil {
				// dropped
				w.log.Debug().Err(err).Str("hash", h.Hex()).Msg("tx lookup")
				continue
			}
			if !pending {
				w.log.Debug().Str("hash", h.Hex()).Msg("tx already mined")
				continue
			}
			obs := Observe(tx)
			obs.Hash = h
			if !w.cfg.Matcher.Match(obs) {
				continue
			}
			select {
			case matches <- obs:
			case <-ctx.Done():
				return
			}
		}
	}
}

// markSeen returns false for hashes already handled.
func (w *Watcher) markSeen(h common.Hash) bool {
	w.seenMu.Lock()
	defer w.seenMu.Unlock()
	if _, ok := w.seen[h]; ok {
		return false
	}
	if len(w.seen) >= seenLimit {
		w.seen = make(map[common.Hash]struct{})
	}
	w.seen[h] = struct{}{}
	return true
}

// runAttempt builds, submits and resolves one bundle. It returns nil when the
// bundle never reached the relay.
func (w *Watcher) runAttempt(parent context.Context, trigger *ObservedTransaction) *Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.cfg.Timeout+w.cfg.Grace)
	defer cancel()
	log := w.log.With().Str("hash", trigger.Hash.Hex()).Logger()

	head, err := w.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("head lookup failed, dropping trigger")
		return nil
	}
	fees := w.gas.Derive(trigger)

	w.setState(StateBuilding)
	nonce, err := w.chain.PendingNonceAt(ctx, w.signer.Address())
	if err != nil {
		log.Error().Err(err).Msg("nonce lookup failed, dropping trigger")
		return nil
	}
	companion := BuildCompanion(w.cfg.CompanionTo, w.cfg.CompanionData, w.cfg.CompanionValue, w.cfg.GasLimit, fees, nonce, w.cfg.ChainID)
	bundle, err := w.asm.Assemble(trigger, companion)
	if err != nil {
		log.Error().Err(err).Msg("bundle assembly failed, dropping trigger")
		return nil
	}
	target, window := PlanTarget(head, w.cfg.Timeout)
	attempt := NewBundleAttempt(bundle, companion, target, window)
	w.setLive(&AttemptView{ID: attempt.ID.String(), Trigger: trigger.Hash.Hex(), TargetBlock: target, MaxTime: window.MaxTimestamp})
	defer w.setLive(nil)

	log.Info().
		Str("attempt", attempt.ID.String()).
		Uint64("target_block", target).
		Str("max_fee_gwei", FormatGwei(fees.MaxFeePerGas)).
		Str("priority_gwei", FormatGwei(fees.MaxPriorityFeePerGas)).
		Uint64("nonce", nonce).
		Msg("bundle assembled")

	sub, err := w.asm.Submit(ctx, attempt)
	if err != nil {
		r := w.tracker.Record(ctx, attempt)
		return w.finish(r)
	}
	w.setState(StateSubmitted)
	w.tracker.Resolve(ctx, attempt, sub)
	return w.finish(NewResult(attempt))
}

func (w *Watcher) finish(r Result) *Result {
	w.mu.Lock()
	w.state = StateResolved
	w.last = &r
	w.mu.Unlock()
	return &r
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watcher) setLive(v *AttemptView) {
	w.mu.Lock()
	w.live = v
	w.mu.Unlock()
}

// Snapshot reports the current state for the status endpoint.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{
		State:    w.state,
		Mode:     w.cfg.Mode,
		Live:     w.live,
		Last:     w.last,
		Seen:     w.nSeen.Load(),
		Matched:  w.nMatched.Load(),
		Rejected: w.nRejected.Load(),
	}
}
