package bundlecore

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

func newAttempt(t *testing.T, relay *fakeRelay) (*Assembler, *BundleAttempt) {
	t.Helper()
	asm := NewAssembler(relay, keySigner{newKey(t)}, testLogger())
	trig := triggerTx(t, newKey(t), testTarget, testSelector, gweis(10), gweis(2))
	comp := BuildCompanion(testTarget, []byte{0x01}, nil, 300000,
		FeeSchedule{MaxFeePerGas: gweis(12), MaxPriorityFeePerGas: big.NewInt(2_400_000_000)}, 0, testChainID)
	b, err := asm.Assemble(Observe(trig), comp)
	require.NoError(t, err)
	target, w := PlanTarget(&types.Header{Number: big.NewInt(100), Time: 1_700_000_000}, 60*time.Second)
	return asm, NewBundleAttempt(b, comp, target, w)
}

func TestPlanTarget(t *testing.T) {
	target, w := PlanTarget(&types.Header{Number: big.NewInt(100), Time: 1_700_000_000}, 60*time.Second)
	assert.Equal(t, uint64(101), target)
	assert.Equal(t, uint64(1_700_000_000), w.MinTimestamp)
	assert.Equal(t, uint64(1_700_000_060), w.MaxTimestamp)
	assert.Equal(t, time.Unix(1_700_000_060, 0), w.Deadline())
}

func TestSubmitSendsAfterCleanSimulation(t *testing.T) {
	relay := &fakeRelay{}
	asm, attempt := newAttempt(t, relay)

	sub, err := asm.Submit(context.Background(), attempt)
	require.NoError(t, err)
	require.NotNil(t, sub)

	require.Len(t, relay.simCalls, 1)
	assert.Equal(t, attempt.Bundle.RawHex(), relay.simCalls[0])
	require.Len(t, relay.sent, 1)
	req := relay.sent[0]
	assert.Equal(t, uint64(101), req.BlockNumber)
	assert.Equal(t, uint64(1_700_000_000), req.MinTimestamp)
	assert.Equal(t, uint64(1_700_000_060), req.MaxTimestamp)
	assert.Equal(t, attempt.ID.String(), req.ReplacementUUID)
	require.Len(t, req.Transactions, 2)
	assert.Equal(t, attempt.TriggerHash, req.Transactions[0].Hash())

	_, resolved := attempt.Outcome()
	assert.False(t, resolved)
}

func TestSubmitSimulationRevert(t *testing.T) {
	relay := &fakeRelay{sim: &flashbots.SimResult{Error: "tx 0x2: execution reverted"}}
	asm, attempt := newAttempt(t, relay)

	sub, err := asm.Submit(context.Background(), attempt)
	assert.Nil(t, sub)
	assert.ErrorIs(t, err, ErrSimulationRejected)
	assert.Equal(t, 0, relay.sendCount())

	o, ok := attempt.Outcome()
	require.True(t, ok)
	assert.Equal(t, SimulationFailed, o.Status)
	assert.Contains(t, o.Err, "execution reverted")
}

func TestSubmitSimulationTransportError(t *testing.T) {
	relay := &fakeRelay{simErr: errors.New("connection refused")}
	asm, attempt := newAttempt(t, relay)

	_, err := asm.Submit(context.Background(), attempt)
	assert.ErrorIs(t, err, ErrSimulationRejected)
	assert.Equal(t, 0, relay.sendCount())
	o, _ := attempt.Outcome()
	assert.Equal(t, SimulationFailed, o.Status)
}

func TestSubmitSendRejected(t *testing.T) {
	relay := &fakeRelay{sendErr: &flashbots.RPCError{Code: -32000, Message: "bundle too old"}}
	asm, attempt := newAttempt(t, relay)

	_, err := asm.Submit(context.Background(), attempt)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	o, ok := attempt.Outcome()
	require.True(t, ok)
	assert.Equal(t, SubmissionFailed, o.Status)
	assert.Contains(t, o.Err, "bundle too old")
}

func TestAssembleErrors(t *testing.T) {
	trig := triggerTx(t, newKey(t), testTarget, testSelector, gweis(10), gweis(2))
	comp := BuildCompanion(testTarget, nil, nil, 21000, FeeSchedule{MaxFeePerGas: gweis(2), MaxPriorityFeePerGas: gweis(1)}, 0, testChainID)

	asm := NewAssembler(&fakeRelay{}, failingSigner{}, testLogger())
	_, err := asm.Assemble(Observe(trig), comp)
	assert.ErrorContains(t, err, "hsm offline")

	asm = NewAssembler(&fakeRelay{}, keySigner{newKey(t)}, testLogger())
	obs := Observe(trig)
	obs.Hash = common.HexToHash("0xdead")
	_, err = asm.Assemble(obs, comp)
	assert.ErrorIs(t, err, ErrTriggerEncoding)
}

func TestSubmitEmptyAttempt(t *testing.T) {
	asm := NewAssembler(&fakeRelay{}, keySigner{newKey(t)}, testLogger())
	_, err := asm.Submit(context.Background(), &BundleAttempt{})
	assert.Error(t, err)
}
