package flashbots

import "encoding/json"

type rpcReq struct {
	Jsonrpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcResp struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object returned by the relay.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// callBundleResult is the eth_callBundle result body.
type callBundleResult struct {
	BundleHash       string         `json:"bundleHash"`
	BundleGasPrice   string         `json:"bundleGasPrice"`
	CoinbaseDiff     string         `json:"coinbaseDiff"`
	StateBlockNumber uint64         `json:"stateBlockNumber"`
	TotalGasUsed     uint64         `json:"totalGasUsed"`
	Results          []callTxResult `json:"results"`
}

type callTxResult struct {
	TxHash  string `json:"txHash"`
	GasUsed uint64 `json:"gasUsed"`
	Error   string `json:"error,omitempty"`
	Revert  string `json:"revert,omitempty"`
}

type sendBundleResult struct {
	BundleHash string `json:"bundleHash"`
}
