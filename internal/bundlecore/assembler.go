package bundlecore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

// Relay is the private relay a bundle is simulated against and sent to.
type Relay interface {
	SimulateBundle(ctx context.Context, rawTxs []string, targetBlock uint64) (*flashbots.SimResult, error)
	SendBundle(ctx context.Context, req flashbots.BundleRequest) (flashbots.Submission, error)
}

// Signer signs companion transactions.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

type Assembler struct {
	relay  Relay
	signer Signer
	log    zerolog.Logger
}

func NewAssembler(relay Relay, signer Signer, log zerolog.Logger) *Assembler {
	return &Assembler{relay: relay, signer: signer, log: log.With().Str("component", "assembler").Logger()}
}

// Assemble re-encodes the trigger, signs the companion and orders them.
func (a *Assembler) Assemble(trigger *ObservedTransaction, companion CompanionTransaction) (Bundle, error) {
	trig, err := EncodeTrigger(trigger)
	if err != nil {
		return Bundle{}, err
	}
	signed, err := a.signer.SignTx(companion.Unsigned())
	if err != nil {
		return Bundle{}, fmt.Errorf("sign companion: %w", err)
	}
	comp, err := signedFrom(signed)
	if err != nil {
		return Bundle{}, fmt.Errorf("encode companion: %w", err)
	}
	return NewBundle(trig, comp), nil
}

// PlanTarget picks the block after head and a window starting at head's
// timestamp.
func PlanTarget(head *types.Header, timeout time.Duration) (uint64, Window) {
	ts := head.Time
	return head.Number.Uint64() + 1, Window{
		MinTimestamp: ts,
		MaxTimestamp: ts + uint64(timeout/time.Second),
	}
}

// Submit simulates the attempt's bundle and, if clean, sends it. Failures are
// recorded on the attempt.
func (a *Assembler) Submit(ctx context.Context, attempt *BundleAttempt) (flashbots.Submission, error) {
	if attempt.Bundle.Empty() {
		return nil, errors.New("attempt has no bundle")
	}
	log := a.log.With().Str("attempt", attempt.ID.String()).Uint64("target_block", attempt.TargetBlock).Logger()

	sim, err := a.relay.SimulateBundle(ctx, attempt.Bundle.RawHex(), attempt.TargetBlock)
	if err == nil && !sim.OK {
		err = errors.New(sim.Error)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSimulationRejected, err)
		_ = attempt.SetOutcome(SimulationFailed, err)
		log.Warn().Err(err).Str("reason", flashbots.Explain(err.Error())).Msg("simulation failed, not sending")
		return nil, err
	}
	log.Info().Msg("simulation ok")

	sub, err := a.relay.SendBundle(ctx, flashbots.BundleRequest{
		Transactions:    attempt.Bundle.Transactions(),
		BlockNumber:     attempt.TargetBlock,
		MinTimestamp:    attempt.Window.MinTimestamp,
		MaxTimestamp:    attempt.Window.MaxTimestamp,
		ReplacementUUID: attempt.ID.String(),
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
		_ = attempt.SetOutcome(SubmissionFailed, err)
		log.Error().Err(err).Str("reason", flashbots.Explain(err.Error())).Msg("send failed")
		return nil, err
	}
	log.Info().Str("bundle_hash", sub.BundleHash()).Msg("bundle submitted")
	return sub, nil
}
