package bundlecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

// CompanionRecord is the persisted form of the companion transaction.
type CompanionRecord struct {
	To                   string `json:"to"`
	Data                 string `json:"data"`
	Value                string `json:"value"`
	GasLimit             uint64 `json:"gasLimit"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	Nonce                uint64 `json:"nonce"`
	ChainID              string `json:"chainId"`
	Type                 uint8  `json:"type"`
	Hash                 string `json:"hash,omitempty"`
}

// Result is the record written for every terminal attempt.
type Result struct {
	Timestamp     int64           `json:"timestamp"` // unix millis
	Time          string          `json:"time"`
	AttemptID     string          `json:"attemptId"`
	TriggerTxHash string          `json:"triggerTxHash"`
	CompanionTx   CompanionRecord `json:"companionTxParams"`
	TargetBlock   uint64          `json:"targetBlock"`
	MinTimestamp  uint64          `json:"minTimestamp"`
	MaxTimestamp  uint64          `json:"maxTimestamp"`
	Success       bool            `json:"success"`
	BundleStatus  OutcomeStatus   `json:"bundleStatus"`
	Error         string          `json:"error,omitempty"`
}

// ResultSink persists results.
type ResultSink interface {
	Save(ctx context.Context, r Result) error
}

// NewResult renders an attempt. Unresolved attempts report Unknown.
func NewResult(a *BundleAttempt) Result {
	now := time.Now()
	c := a.Companion
	r := Result{
		Timestamp:     now.UnixMilli(),
		Time:          now.Format("2006-01-02 15:04:05"),
		AttemptID:     a.ID.String(),
		TriggerTxHash: a.TriggerHash.Hex(),
		CompanionTx: CompanionRecord{
			To:                   c.To.Hex(),
			Data:                 txAsHex(c.Data),
			Value:                bigString(c.Value),
			GasLimit:             c.GasLimit,
			MaxFeePerGas:         bigString(c.Fees.MaxFeePerGas),
			MaxPriorityFeePerGas: bigString(c.Fees.MaxPriorityFeePerGas),
			Nonce:                c.Nonce,
			ChainID:              bigString(c.ChainID),
			Type:                 c.Type,
		},
		TargetBlock:  a.TargetBlock,
		MinTimestamp: a.Window.MinTimestamp,
		MaxTimestamp: a.Window.MaxTimestamp,
		BundleStatus: Unknown,
	}
	if !a.Bundle.Empty() {
		r.CompanionTx.Hash = a.Bundle.Companion().Hash.Hex()
	}
	if o, ok := a.Outcome(); ok {
		r.BundleStatus = o.Status
		r.Success = o.Status == Included
		r.Error = o.Err
	}
	return r
}

// Tracker waits for relay outcomes and persists results.
type Tracker struct {
	sink ResultSink
	log  zerolog.Logger
}

func NewTracker(sink ResultSink, log zerolog.Logger) *Tracker {
	return &Tracker{sink: sink, log: log.With().Str("component", "tracker").Logger()}
}

// Resolve blocks until the submission resolves or the attempt window closes,
// stores the status on the attempt and persists the result.
func (t *Tracker) Resolve(ctx context.Context, attempt *BundleAttempt, sub flashbots.Submission) OutcomeStatus {
	if o, ok := attempt.Outcome(); ok {
		t.Record(ctx, attempt)
		return o.Status
	}
	wctx, cancel := context.WithDeadline(ctx, attempt.Window.Deadline())
	defer cancel()

	var (
		status OutcomeStatus
		cause  error
	)
	code, err := sub.Wait(wctx)
	switch {
	case err == nil:
		status = StatusFromResolution(code)
		if status == Unknown {
			cause = fmt.Errorf("unmapped relay resolution %s", code)
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = Expired
		cause = fmt.Errorf("window closed at %d without resolution", attempt.Window.MaxTimestamp)
	default:
		status = Unknown
		cause = fmt.Errorf("wait: %w", err)
	}
	if err := attempt.SetOutcome(status, cause); err != nil {
		t.log.Warn().Err(err).Str("attempt", attempt.ID.String()).Msg("outcome already recorded")
	}
	o, _ := attempt.Outcome()
	t.Record(ctx, attempt)
	return o.Status
}

// Record persists the attempt's current state and returns the record.
// Sink errors are logged, never returned.
func (t *Tracker) Record(ctx context.Context, attempt *BundleAttempt) Result {
	r := NewResult(attempt)
	ev := t.log.Info()
	if !r.Success {
		ev = t.log.Warn()
	}
	ev.Str("attempt", r.AttemptID).
		Str("trigger", r.TriggerTxHash).
		Uint64("target_block", r.TargetBlock).
		Str("status", string(r.BundleStatus)).
		Str("error", r.Error).
		Msg("attempt resolved")
	if t.sink == nil {
		return r
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := t.sink.Save(sctx, r); err != nil {
		t.log.Error().Err(err).Str("attempt", r.AttemptID).Msg("persist result")
	}
	return r
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
