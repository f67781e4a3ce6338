package bundlecore

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// CompanionTransaction holds the parameters of our own bundle transaction.
type CompanionTransaction struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	Fees     FeeSchedule
	Nonce    uint64
	ChainID  *big.Int
	Type     uint8
}

// BuildCompanion assembles an EIP-1559 companion. Inputs are copied.
func BuildCompanion(to common.Address, data []byte, value *big.Int, gasLimit uint64, fees FeeSchedule, nonce uint64, chainID *big.Int) CompanionTransaction {
	if value == nil {
		value = new(big.Int)
	}
	return CompanionTransaction{
		To:       to,
		Data:     common.CopyBytes(data),
		Value:    new(big.Int).Set(value),
		GasLimit: gasLimit,
		Fees:     copyFees(fees),
		Nonce:    nonce,
		ChainID:  copyBig(chainID),
		Type:     types.DynamicFeeTxType,
	}
}

// Unsigned renders the companion as a go-ethereum dynamic fee tx.
func (c CompanionTransaction) Unsigned() *types.Transaction {
	to := c.To
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   copyBig(c.ChainID),
		Nonce:     c.Nonce,
		GasTipCap: copyBig(c.Fees.MaxPriorityFeePerGas),
		GasFeeCap: copyBig(c.Fees.MaxFeePerGas),
		Gas:       c.GasLimit,
		To:        &to,
		Value:     copyBig(c.Value),
		Data:      common.CopyBytes(c.Data),
	})
}

// EncodeTrigger re-encodes an observed signed tx. The bytes must hash to the
// observed hash or the tx cannot be replayed in a bundle.
func EncodeTrigger(o *ObservedTransaction) (SignedTransaction, error) {
	if o == nil || o.Tx == nil {
		return SignedTransaction{}, fmt.Errorf("%w: no transaction", ErrTriggerEncoding)
	}
	raw, err := o.Tx.MarshalBinary()
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("%w: %v", ErrTriggerEncoding, err)
	}
	if h := crypto.Keccak256Hash(raw); h != o.Hash {
		return SignedTransaction{}, fmt.Errorf("%w: got %s want %s", ErrTriggerEncoding, h.Hex(), o.Hash.Hex())
	}
	return SignedTransaction{Raw: raw, Hash: o.Hash, Tx: o.Tx}, nil
}

func signedFrom(tx *types.Transaction) (SignedTransaction, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{Raw: raw, Hash: tx.Hash(), Tx: tx}, nil
}

func txAsHex(raw []byte) string {
	return hexutil.Encode(raw)
}
