package bundlecore

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

// ObservedTransaction is a pending transaction as fetched from the node.
type ObservedTransaction struct {
	Hash      common.Hash
	To        *common.Address
	Data      []byte
	GasFeeCap *big.Int // nil unless the tx carries dynamic fees
	GasTipCap *big.Int
	From      common.Address
	Nonce     uint64
	ChainID   *big.Int
	Tx        *types.Transaction
}

// Observe captures the fields of tx that the pipeline needs. The sender is
// recovered with the latest signer for the tx's chain; a failure leaves it zero.
func Observe(tx *types.Transaction) *ObservedTransaction {
	if tx == nil {
		return nil
	}
	o := &ObservedTransaction{
		Hash:    tx.Hash(),
		To:      tx.To(),
		Data:    tx.Data(),
		Nonce:   tx.Nonce(),
		ChainID: tx.ChainId(),
		Tx:      tx,
	}
	switch tx.Type() {
	case types.DynamicFeeTxType, types.BlobTxType:
		o.GasFeeCap = tx.GasFeeCap()
		o.GasTipCap = tx.GasTipCap()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		o.From = from
	}
	return o
}

// FeeSchedule holds EIP-1559 fee caps in wei.
type FeeSchedule struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Valid reports max >= priority > 0.
func (f FeeSchedule) Valid() bool {
	if f.MaxFeePerGas == nil || f.MaxPriorityFeePerGas == nil {
		return false
	}
	return f.MaxPriorityFeePerGas.Sign() > 0 && f.MaxFeePerGas.Cmp(f.MaxPriorityFeePerGas) >= 0
}

// SignedTransaction is an encoded, signed transaction ready for a bundle.
type SignedTransaction struct {
	Raw  []byte
	Hash common.Hash
	Tx   *types.Transaction
}

// Bundle is the ordered pair [trigger, companion]. The zero value is empty and
// the only way to fill one is NewBundle.
type Bundle struct {
	txs [2]SignedTransaction
	ok  bool
}

func NewBundle(trigger, companion SignedTransaction) Bundle {
	return Bundle{txs: [2]SignedTransaction{trigger, companion}, ok: true}
}

func (b Bundle) Empty() bool                  { return !b.ok }
func (b Bundle) Trigger() SignedTransaction   { return b.txs[0] }
func (b Bundle) Companion() SignedTransaction { return b.txs[1] }

func (b Bundle) Transactions() []*types.Transaction {
	if !b.ok {
		return nil
	}
	return []*types.Transaction{b.txs[0].Tx, b.txs[1].Tx}
}

// RawHex returns the 0x-prefixed encodings in bundle order.
func (b Bundle) RawHex() []string {
	if !b.ok {
		return nil
	}
	return []string{txAsHex(b.txs[0].Raw), txAsHex(b.txs[1].Raw)}
}

// Window bounds the validity of a bundle in unix seconds.
type Window struct {
	MinTimestamp uint64
	MaxTimestamp uint64
}

func (w Window) Deadline() time.Time {
	return time.Unix(int64(w.MaxTimestamp), 0)
}

// OutcomeStatus is the terminal status of an attempt.
type OutcomeStatus string

const (
	Included         OutcomeStatus = "Included"
	NotIncluded      OutcomeStatus = "NotIncluded"
	Expired          OutcomeStatus = "Expired"
	SubmissionFailed OutcomeStatus = "SubmissionFailed"
	SimulationFailed OutcomeStatus = "SimulationFailed"
	Unknown          OutcomeStatus = "Unknown"
)

// StatusFromResolution maps a relay resolution code to a status.
func StatusFromResolution(r flashbots.Resolution) OutcomeStatus {
	switch r {
	case flashbots.BundleIncluded:
		return Included
	case flashbots.BlockPassedWithoutInclusion:
		return NotIncluded
	case flashbots.AccountNonceTooHigh:
		return Expired
	default:
		return Unknown
	}
}

// Outcome is what an attempt ended with.
type Outcome struct {
	Status OutcomeStatus
	Err    string
	At     time.Time
}

// BundleAttempt tracks one submission. Its outcome is written once.
type BundleAttempt struct {
	ID          uuid.UUID
	TriggerHash common.Hash
	Companion   CompanionTransaction
	Bundle      Bundle
	TargetBlock uint64
	Window      Window
	CreatedAt   time.Time

	mu      sync.Mutex
	outcome *Outcome
}

func NewBundleAttempt(bundle Bundle, companion CompanionTransaction, target uint64, w Window) *BundleAttempt {
	return &BundleAttempt{
		ID:          uuid.New(),
		TriggerHash: bundle.Trigger().Hash,
		Companion:   companion,
		Bundle:      bundle,
		TargetBlock: target,
		Window:      w,
		CreatedAt:   time.Now(),
	}
}

// SetOutcome records the terminal status. A second call fails with
// ErrOutcomeAlreadySet and leaves the first outcome intact.
func (a *BundleAttempt) SetOutcome(status OutcomeStatus, cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome != nil {
		return ErrOutcomeAlreadySet
	}
	o := &Outcome{Status: status, At: time.Now()}
	if cause != nil {
		o.Err = cause.Error()
	}
	a.outcome = o
	return nil
}

// Outcome returns the recorded outcome, or false while unresolved.
func (a *BundleAttempt) Outcome() (Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome == nil {
		return Outcome{}, false
	}
	return *a.outcome, true
}
