package bundlecore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

// liveAttempt returns an attempt whose window closes after d.
func liveAttempt(t *testing.T, d time.Duration) *BundleAttempt {
	t.Helper()
	b, comp := testBundle(t)
	now := uint64(time.Now().Unix())
	return NewBundleAttempt(b, comp, 101, Window{MinTimestamp: now, MaxTimestamp: now + uint64(d/time.Second)})
}

func TestResolveMapsRelayCodes(t *testing.T) {
	tests := []struct {
		res     flashbots.Resolution
		want    OutcomeStatus
		success bool
	}{
		{flashbots.BundleIncluded, Included, true},
		{flashbots.BlockPassedWithoutInclusion, NotIncluded, false},
		{flashbots.AccountNonceTooHigh, Expired, false},
		{flashbots.Resolution(42), Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.res.String(), func(t *testing.T) {
			sink := &memSink{}
			tr := NewTracker(sink, testLogger())
			a := liveAttempt(t, time.Minute)

			got := tr.Resolve(context.Background(), a, &fakeSubmission{res: tt.res})
			assert.Equal(t, tt.want, got)

			saved := sink.all()
			require.Len(t, saved, 1)
			assert.Equal(t, tt.want, saved[0].BundleStatus)
			assert.Equal(t, tt.success, saved[0].Success)
			assert.Equal(t, a.ID.String(), saved[0].AttemptID)
		})
	}
}

func TestResolveWindowElapsed(t *testing.T) {
	sink := &memSink{}
	tr := NewTracker(sink, testLogger())
	b, comp := testBundle(t)
	past := uint64(time.Now().Add(-time.Second).Unix())
	a := NewBundleAttempt(b, comp, 101, Window{MinTimestamp: past - 1, MaxTimestamp: past})

	start := time.Now()
	got := tr.Resolve(context.Background(), a, &fakeSubmission{block: true})
	assert.Equal(t, Expired, got)
	assert.Less(t, time.Since(start), 5*time.Second)

	saved := sink.all()
	require.Len(t, saved, 1)
	assert.False(t, saved[0].Success)
	assert.Equal(t, Expired, saved[0].BundleStatus)
}

func TestResolveWaitError(t *testing.T) {
	tr := NewTracker(&memSink{}, testLogger())
	a := liveAttempt(t, time.Minute)
	got := tr.Resolve(context.Background(), a, &fakeSubmission{err: errors.New("rpc down")})
	assert.Equal(t, Unknown, got)
	o, _ := a.Outcome()
	assert.Contains(t, o.Err, "rpc down")
}

func TestResolveKeepsEarlierOutcome(t *testing.T) {
	sink := &memSink{}
	tr := NewTracker(sink, testLogger())
	a := liveAttempt(t, time.Minute)
	require.NoError(t, a.SetOutcome(SubmissionFailed, errors.New("rejected")))

	got := tr.Resolve(context.Background(), a, &fakeSubmission{res: flashbots.BundleIncluded})
	assert.Equal(t, SubmissionFailed, got)
	require.Len(t, sink.all(), 1)
}

func TestResultRecordShape(t *testing.T) {
	a := liveAttempt(t, time.Minute)
	require.NoError(t, a.SetOutcome(Included, nil))
	r := NewResult(a)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"timestamp", "time", "attemptId", "triggerTxHash", "companionTxParams",
		"targetBlock", "minTimestamp", "maxTimestamp", "success", "bundleStatus"} {
		assert.Contains(t, m, k)
	}
	assert.NotContains(t, m, "error")
	ctx, ok := m["companionTxParams"].(map[string]any)
	require.True(t, ok)
	for _, k := range []string{"to", "data", "value", "gasLimit", "maxFeePerGas", "maxPriorityFeePerGas", "nonce", "chainId", "type", "hash"} {
		assert.Contains(t, ctx, k)
	}
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "Included", m["bundleStatus"])
	assert.EqualValues(t, 2, ctx["type"])
	assert.Equal(t, "12000000000", ctx["maxFeePerGas"])
	assert.Equal(t, a.Bundle.Companion().Hash.Hex(), ctx["hash"])
}

func TestRecordUnresolvedIsUnknown(t *testing.T) {
	r := NewResult(liveAttempt(t, time.Minute))
	assert.Equal(t, Unknown, r.BundleStatus)
	assert.False(t, r.Success)
}
