package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
}

// FromHex parses a hex private key (with or without 0x). A nil chainID means
// each tx is signed for its own chain id.
func FromHex(s string, chainID *big.Int) (*KeySigner, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if h == "" {
		return nil, errors.New("empty private key")
	}
	k, err := crypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return New(k, chainID), nil
}

func New(k *ecdsa.PrivateKey, chainID *big.Int) *KeySigner {
	s := &KeySigner{key: k, addr: crypto.PubkeyToAddress(k.PublicKey)}
	if chainID != nil {
		s.chainID = new(big.Int).Set(chainID)
	}
	return s
}

func (s *KeySigner) Address() common.Address { return s.addr }

// SignTx signs with the latest signer for the tx's chain.
func (s *KeySigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	id := s.chainID
	if id == nil {
		id = tx.ChainId()
	} else if txID := tx.ChainId(); txID != nil && txID.Sign() != 0 && txID.Cmp(id) != 0 {
		return nil, fmt.Errorf("tx chain id %s, signer bound to %s", txID, id)
	}
	return types.SignTx(tx, types.LatestSignerForChainID(id), s.key)
}
