package bundlecore

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Matches reports whether tx calls selector on target. Contract creations,
// short call data and an empty selector never match.
func Matches(tx *ObservedTransaction, target common.Address, selector []byte) bool {
	if tx == nil || tx.To == nil || len(selector) == 0 {
		return false
	}
	// common.Address is raw bytes, so checksum casing never matters here.
	if *tx.To != target {
		return false
	}
	return len(tx.Data) >= len(selector) && bytes.Equal(tx.Data[:len(selector)], selector)
}

// TriggerMatcher binds a target and selector.
type TriggerMatcher struct {
	Target   common.Address
	Selector []byte
}

func (m TriggerMatcher) Match(tx *ObservedTransaction) bool {
	return Matches(tx, m.Target, m.Selector)
}

// ParseSelector decodes a 4-byte hex selector such as "0xa8eac492".
func ParseSelector(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", s, err)
	}
	if len(b) != 4 {
		return nil, fmt.Errorf("selector %q: want 4 bytes, got %d", s, len(b))
	}
	return b, nil
}
