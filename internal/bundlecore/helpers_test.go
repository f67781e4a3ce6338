package bundlecore

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitParsing(t *testing.T) {
	v, err := GweiToWei("1.5")
	require.NoError(t, err)
	assertBig(t, big.NewInt(1_500_000_000), v)

	v, err = ParseETH("0.01")
	require.NoError(t, err)
	assertBig(t, big.NewInt(10_000_000_000_000_000), v)

	v, err = ParseETH("")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	_, err = GweiToWei("-1")
	assert.Error(t, err)
	_, err = ParseETH("lots")
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "2.40", FormatGwei(big.NewInt(2_400_000_000)))
	assert.Equal(t, "0.010000", FormatETH(big.NewInt(10_000_000_000_000_000)))
	assert.Equal(t, "0", FormatGwei(nil))
}
