package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Client is an execution client connection with the pending-tx subscription
// that ethclient lacks.
type Client struct {
	*ethclient.Client
	geth *gethclient.Client
	rpcs []*rpc.Client
	lim  *rate.Limiter // nil = unlimited
}

// Dial connects to rpcURL for requests and to wsURL for subscriptions. An empty
// wsURL reuses rpcURL, which must then be a websocket or IPC endpoint.
func Dial(ctx context.Context, rpcURL, wsURL string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c := &Client{Client: ethclient.NewClient(rc), rpcs: []*rpc.Client{rc}}
	if wsURL == "" || wsURL == rpcURL {
		c.geth = gethclient.New(rc)
		return c, nil
	}
	wc, err := rpc.DialContext(ctx, wsURL)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	c.rpcs = append(c.rpcs, wc)
	c.geth = gethclient.New(wc)
	return c, nil
}

// SubscribePendingTransactions streams hashes of transactions entering the
// node's mempool.
func (c *Client) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	sub, err := c.geth.SubscribePendingTransactions(ctx, ch)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// LimitLookups caps per-hash transaction lookups at rps per second. Zero or
// less removes the cap.
func (c *Client) LimitLookups(rps int) {
	if rps <= 0 {
		c.lim = nil
		return
	}
	c.lim = rate.NewLimiter(rate.Limit(rps), rps)
}

func (c *Client) Close() {
	for _, r := range c.rpcs {
		r.Close()
	}
}
