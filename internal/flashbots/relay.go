package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	jsoniter "github.com/json-iterator/go"
)

const userAgent = "bundle-monitor/1.0"

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to a Flashbots-compatible relay over JSON-RPC.
type Client struct {
	RelayURL string
	AuthKey  *ecdsa.PrivateKey // X-Flashbots-Signature key
	http     *http.Client
	chain    ChainReader
	poll     time.Duration
}

// SimResult is the outcome of eth_callBundle.
type SimResult struct {
	OK         bool
	BundleHash string
	Error      string
	RawJSON    string
}

// BundleRequest describes one eth_sendBundle call.
type BundleRequest struct {
	Transactions    []*types.Transaction
	BlockNumber     uint64
	MinTimestamp    uint64
	MaxTimestamp    uint64
	ReplacementUUID string
}

// NewClient builds a relay client. An empty auth key gets a throwaway identity,
// the relay only uses it for reputation.
func NewClient(relayURL, authPrivHex string, chain ChainReader) (*Client, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if h := strings.TrimPrefix(strings.TrimSpace(authPrivHex), "0x"); h != "" {
		key, err = crypto.HexToECDSA(h)
		if err != nil {
			return nil, fmt.Errorf("auth key: %w", err)
		}
	} else {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate auth key: %w", err)
		}
	}
	return &Client{
		RelayURL: strings.TrimSpace(relayURL),
		AuthKey:  key,
		http:     &http.Client{Timeout: 12 * time.Second},
		chain:    chain,
		poll:     time.Second,
	}, nil
}

// AuthAddress is the address relays see in X-Flashbots-Signature.
func (c *Client) AuthAddress() string {
	return crypto.PubkeyToAddress(c.AuthKey.PublicKey).Hex()
}

func (c *Client) signBody(b []byte) (string, error) {
	// EIP-191 over the hex keccak of the body.
	digest := accounts.TextHash([]byte(crypto.Keccak256Hash(b).Hex()))
	sig, err := crypto.Sign(digest, c.AuthKey)
	if err != nil {
		return "", err
	}
	return c.AuthAddress() + ":" + hexutil.Encode(sig), nil
}

func (c *Client) call(ctx context.Context, method string, params any) (*rpcResp, string, error) {
	body, err := codec.Marshal(rpcReq{Jsonrpc: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, "", err
	}
	sig, err := c.signBody(body)
	if err != nil {
		return nil, "", fmt.Errorf("sign body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RelayURL, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Flashbots-Signature", sig)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	var out rpcResp
	if err := codec.Unmarshal(rb, &out); err != nil {
		return nil, string(rb), fmt.Errorf("http %d: non-JSON response: %w", resp.StatusCode, err)
	}
	return &out, string(rb), nil
}

// SimulateBundle runs eth_callBundle against the state of the latest block.
// A non-nil error means the relay could not be asked; a rejected bundle comes
// back as OK=false.
func (c *Client) SimulateBundle(ctx context.Context, rawTxs []string, targetBlock uint64) (*SimResult, error) {
	params := []any{map[string]any{
		"txs":              rawTxs,
		"blockNumber":      hexutil.EncodeUint64(targetBlock),
		"stateBlockNumber": "latest",
	}}
	out, raw, err := c.call(ctx, "eth_callBundle", params)
	if err != nil {
		return nil, err
	}
	res := &SimResult{RawJSON: raw}
	if out.Error != nil {
		res.Error = fmt.Sprintf("%d %s", out.Error.Code, out.Error.Message)
		return res, nil
	}
	var body callBundleResult
	if err := codec.Unmarshal(out.Result, &body); err != nil {
		res.Error = "decode result: " + err.Error()
		return res, nil
	}
	res.BundleHash = body.BundleHash
	for _, r := range body.Results {
		if r.Error != "" || r.Revert != "" {
			res.Error = fmt.Sprintf("tx %s: %s", r.TxHash, firstNonEmpty(r.Error, r.Revert))
			return res, nil
		}
	}
	res.OK = true
	return res, nil
}

// SendBundle submits the bundle with eth_sendBundle and returns a handle that
// can wait for the inclusion outcome.
func (c *Client) SendBundle(ctx context.Context, req BundleRequest) (Submission, error) {
	if len(req.Transactions) == 0 {
		return nil, errors.New("empty bundle")
	}
	rawTxs := make([]string, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		b, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode tx %s: %w", tx.Hash().Hex(), err)
		}
		rawTxs = append(rawTxs, hexutil.Encode(b))
	}
	payload := map[string]any{
		"txs":         rawTxs,
		"blockNumber": hexutil.EncodeUint64(req.BlockNumber),
	}
	if req.MinTimestamp > 0 {
		payload["minTimestamp"] = req.MinTimestamp
	}
	if req.MaxTimestamp > 0 {
		payload["maxTimestamp"] = req.MaxTimestamp
	}
	if req.ReplacementUUID != "" {
		payload["replacementUuid"] = req.ReplacementUUID
	}
	out, _, err := c.call(ctx, "eth_sendBundle", []any{payload})
	if err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, out.Error
	}
	var res sendBundleResult
	if err := codec.Unmarshal(out.Result, &res); err != nil {
		return nil, fmt.Errorf("decode eth_sendBundle result %s: %w", out.Result, err)
	}
	return newSubmission(res.BundleHash, c.chain, req.Transactions, req.BlockNumber, c.poll), nil
}

// Probe checks that the relay answers eth_callBundle. A JSON-RPC error about
// the empty bundle counts as reachable; one saying the method is missing
// does not.
func (c *Client) Probe(ctx context.Context) error {
	out, _, err := c.call(ctx, "eth_callBundle", []any{map[string]any{
		"txs":              []string{},
		"blockNumber":      hexutil.EncodeUint64(0),
		"stateBlockNumber": "latest",
	}})
	if err != nil {
		return fmt.Errorf("relay %s unreachable: %w", c.RelayURL, err)
	}
	if e := out.Error; e != nil && (e.Code == codeMethodNotFound || Explain(e.Message) == reasonNoSimulation) {
		return fmt.Errorf("relay %s cannot simulate bundles: %w", c.RelayURL, e)
	}
	return nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
