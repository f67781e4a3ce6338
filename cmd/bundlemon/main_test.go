package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
	"github.com/ligun0805/bundle-monitor/internal/config"
)

func TestMaskHex(t *testing.T) {
	assert.Equal(t, "***", maskHex("0x1234"))
	assert.Equal(t, "0xabcd…7890", maskHex(" 0xabcdef1234567890 "))
}

func TestWatcherConfigFromSettings(t *testing.T) {
	st := config.Defaults()
	st.RPCURL = "ws://localhost:8546"
	st.TargetContract = "0xB3F33A179BD1Ab0917b0e994eAF7444B078677e6"
	st.Mode = "continuous"

	w, err := watcherConfig(st, nil)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("enablePresale()"))[:4], w.Matcher.Selector)
	assert.Equal(t, w.Matcher.Target, w.CompanionTo)
	require.Len(t, w.CompanionData, 4+32)
	assert.Equal(t, "10000000000000000", w.CompanionValue.String())
	assert.Equal(t, bundlecore.ModeContinuous, w.Mode)
	assert.Equal(t, uint64(300000), w.GasLimit)

	st.TriggerSelector = "0xdeadbeef"
	w, err = watcherConfig(st, nil)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", hexutil.Encode(w.Matcher.Selector))

	st.CompanionMethod = "missing"
	_, err = watcherConfig(st, nil)
	assert.ErrorContains(t, err, "companion call")
}
