package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
	"github.com/ligun0805/bundle-monitor/internal/chain"
	"github.com/ligun0805/bundle-monitor/internal/config"
	"github.com/ligun0805/bundle-monitor/internal/flashbots"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Print network fee state, relay reachability and the configured calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := st.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			return runCheck(ctx, os.Stdout, st)
		},
	}
}

func runCheck(ctx context.Context, out io.Writer, st config.Settings) error {
	wcfg, err := watcherConfig(st, big.NewInt(st.ChainID))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[cfg] target %s selector %s\n", wcfg.Matcher.Target.Hex(), hexutil.Encode(wcfg.Matcher.Selector))
	fmt.Fprintf(out, "[cfg] companion data %s value %s ETH gas %d\n", hexutil.Encode(wcfg.CompanionData), bundlecore.FormatETH(wcfg.CompanionValue), wcfg.GasLimit)

	ec, err := chain.Dial(ctx, st.RPCURL, st.WSURL)
	if err != nil {
		return err
	}
	defer ec.Close()

	printNetworkState(ctx, out, ec, st)

	relay, err := flashbots.NewClient(st.RelayURL, st.FlashbotsAuthPK, ec)
	if err != nil {
		return err
	}
	if err := relay.Probe(ctx); err != nil {
		fmt.Fprintln(out, "[relay] error:", err)
	} else {
		fmt.Fprintf(out, "[relay] %s reachable, auth %s\n", st.RelayURL, relay.AuthAddress())
	}
	return nil
}

// printNetworkState prints the head base fee, priority fee percentiles and
// direct builder payments over the last NET_BLOCKS blocks.
func printNetworkState(ctx context.Context, out io.Writer, ec *chain.Client, st config.Settings) {
	baseFee := big.NewInt(0)
	if h, err := ec.HeaderByNumber(ctx, nil); err == nil && h.BaseFee != nil {
		baseFee = h.BaseFee
	}
	fmt.Fprintf(out, "[net] baseFee(now): %s gwei\n", bundlecore.FormatGwei(baseFee))

	stats, next, err := chain.FeeHistoryStats(ctx, ec, st.NetBlocks, st.NetPercentiles)
	if err != nil {
		fmt.Fprintln(out, "[net] feeHistory error:", err)
	} else {
		if next != nil {
			fmt.Fprintf(out, "[net] baseFee(next): %s gwei\n", bundlecore.FormatGwei(next))
		}
		fmt.Fprintf(out, "[net] reward stats last %d blocks:\n", st.NetBlocks)
		for _, p := range st.NetPercentiles {
			s := stats[p]
			fmt.Fprintf(out, "  p%-2d min/avg/max: %s / %s / %s gwei\n", p, bundlecore.FormatGwei(s.Min), bundlecore.FormatGwei(s.Avg), bundlecore.FormatGwei(s.Max))
		}
	}

	pays, err := chain.ScanCoinbasePayments(ctx, ec, st.NetBlocks)
	if err != nil {
		fmt.Fprintln(out, "[net] coinbase scan error:", err)
		return
	}
	s := chain.SummarizePayments(pays)
	fmt.Fprintf(out, "[net] coinbase payments in last %d blocks: count=%d, sum=%s ETH, max=%s ETH\n", st.NetBlocks, s.Count, bundlecore.FormatETH(s.Sum), bundlecore.FormatETH(s.Max))
	if s.Count > 0 {
		fmt.Fprintf(out, "      quantiles: p50=%s ETH, p95=%s ETH, p99=%s ETH\n", bundlecore.FormatETH(s.P50), bundlecore.FormatETH(s.P95), bundlecore.FormatETH(s.P99))
	}
}
