package bundlecore

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultABI describes the presale contract the monitor was built for.
const DefaultABI = `[
  {"name":"enablePresale","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"name":"presale","type":"function","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// ParseABI parses a JSON ABI; empty input yields DefaultABI.
func ParseABI(js string) (abi.ABI, error) {
	if strings.TrimSpace(js) == "" {
		js = DefaultABI
	}
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// MethodSelector returns the 4-byte id of method.
func MethodSelector(a abi.ABI, method string) ([]byte, error) {
	m, ok := a.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not in abi", method)
	}
	return common.CopyBytes(m.ID), nil
}

// EncodeCall packs method with arguments given as strings.
func EncodeCall(a abi.ABI, method string, args []string) ([]byte, error) {
	m, ok := a.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not in abi", method)
	}
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s: want %d args, got %d", method, len(m.Inputs), len(args))
	}
	vals := make([]interface{}, len(args))
	for i, in := range m.Inputs {
		v, err := convertArg(in.Type, strings.TrimSpace(args[i]))
		if err != nil {
			return nil, fmt.Errorf("method %s arg %d (%s): %w", method, i, in.Type.String(), err)
		}
		vals[i] = v
	}
	data, err := a.Pack(method, vals...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func convertArg(t abi.Type, s string) (interface{}, error) {
	switch t.T {
	case abi.UintTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("bad uint %q", s)
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("%q overflows uint%d", s, t.Size)
		}
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		}
		return n, nil
	case abi.IntTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("bad int %q", s)
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%q overflows int%d", s, t.Size)
		}
		switch t.Size {
		case 8:
			return int8(n.Int64()), nil
		case 16:
			return int16(n.Int64()), nil
		case 32:
			return int32(n.Int64()), nil
		case 64:
			return n.Int64(), nil
		}
		return n, nil
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("bad address %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.String())
	}
}
