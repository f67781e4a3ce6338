package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
	"github.com/ligun0805/bundle-monitor/internal/chain"
	"github.com/ligun0805/bundle-monitor/internal/config"
	"github.com/ligun0805/bundle-monitor/internal/flashbots"
	"github.com/ligun0805/bundle-monitor/internal/results"
	"github.com/ligun0805/bundle-monitor/internal/signer"
	"github.com/ligun0805/bundle-monitor/internal/status"
)

func newWatchCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the mempool and bundle the first matching trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if mode != "" {
				st.Mode = mode
			}
			return runWatch(cmd.Context(), st)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Override MODE (single-shot or continuous)")
	return cmd
}

func runWatch(parent context.Context, st config.Settings) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if st.SignerPrivateKey == "" {
		pk, err := readPassword("Signer private key (hex): ")
		if err != nil {
			return fmt.Errorf("SIGNER_PRIVATE_KEY is empty and no key was entered: %w", err)
		}
		st.SignerPrivateKey = pk
	}

	ec, err := chain.Dial(ctx, st.RPCURL, st.WSURL)
	if err != nil {
		return err
	}
	defer ec.Close()
	ec.LimitLookups(st.LookupRPS)

	chainID := big.NewInt(st.ChainID)
	if st.ChainID == 0 {
		if chainID, err = ec.ChainID(ctx); err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
	}

	sgn, err := signer.FromHex(st.SignerPrivateKey, chainID)
	if err != nil {
		return err
	}
	relay, err := flashbots.NewClient(st.RelayURL, st.FlashbotsAuthPK, ec)
	if err != nil {
		return err
	}
	if err := relay.Probe(ctx); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	wcfg, err := watcherConfig(st, chainID)
	if err != nil {
		return err
	}
	fees, err := st.DefaultFees()
	if err != nil {
		return err
	}
	uplift, err := st.Uplift()
	if err != nil {
		return fmt.Errorf("GAS_UPLIFT: %w", err)
	}
	gas, err := bundlecore.NewGasPolicy(uplift, fees)
	if err != nil {
		return err
	}

	store, err := openSinks(ctx, st)
	if err != nil {
		return err
	}
	defer store.Close()

	printBanner(st, sgn.Address(), relay.AuthAddress(), chainID, wcfg)

	tracker := bundlecore.NewTracker(store.sink, log.Logger)
	asm := bundlecore.NewAssembler(relay, sgn, log.Logger)
	w := bundlecore.NewWatcher(ec, sgn, gas, asm, tracker, wcfg, log.Logger)

	g, gctx := errgroup.WithContext(ctx)
	var last *bundlecore.Result
	g.Go(func() error {
		// a finished watcher takes the status server down with it
		defer stop()
		var err error
		last, err = w.Run(gctx)
		return err
	})
	if st.StatusAddr != "" {
		srv := status.NewServer(w, store.history, log.Logger)
		if store.lookup != nil {
			srv.WithLookup(store.lookup)
		}
		g.Go(func() error { return srv.RunWithContext(gctx, st.StatusAddr) })
	}

	err = g.Wait()
	if last != nil {
		log.Info().Str("attempt", last.AttemptID).Str("status", string(last.BundleStatus)).Bool("success", last.Success).Msg("last attempt")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func watcherConfig(st config.Settings, chainID *big.Int) (bundlecore.WatcherConfig, error) {
	contractABI, err := bundlecore.ParseABI(st.ContractABI)
	if err != nil {
		return bundlecore.WatcherConfig{}, fmt.Errorf("CONTRACT_ABI: %w", err)
	}
	var sel []byte
	if st.TriggerSelector != "" {
		sel, err = bundlecore.ParseSelector(st.TriggerSelector)
	} else {
		sel, err = bundlecore.MethodSelector(contractABI, st.TriggerMethod)
	}
	if err != nil {
		return bundlecore.WatcherConfig{}, fmt.Errorf("trigger selector: %w", err)
	}
	data, err := bundlecore.EncodeCall(contractABI, st.CompanionMethod, st.CompanionArgs)
	if err != nil {
		return bundlecore.WatcherConfig{}, fmt.Errorf("companion call: %w", err)
	}
	value, err := bundlecore.ParseETH(st.CompanionValueETH)
	if err != nil {
		return bundlecore.WatcherConfig{}, fmt.Errorf("COMPANION_VALUE_ETH: %w", err)
	}
	mode, err := bundlecore.ParseMode(st.Mode)
	if err != nil {
		return bundlecore.WatcherConfig{}, err
	}
	target := common.HexToAddress(st.TargetContract)
	return bundlecore.WatcherConfig{
		Matcher:        bundlecore.TriggerMatcher{Target: target, Selector: sel},
		CompanionTo:    target,
		CompanionData:  data,
		CompanionValue: value,
		GasLimit:       st.GasLimit,
		Timeout:        st.BundleTimeout(),
		Mode:           mode,
		Workers:        st.Workers,
		HashBuffer:     st.HashBuffer,
		ChainID:        chainID,
	}, nil
}

// stores holds the opened result sinks and what the status server reads
// back from them.
type stores struct {
	sink    results.Multi
	history status.History // sqlite only
	lookup  status.Lookup  // postgres when set, else sqlite
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openSinks(ctx context.Context, st config.Settings) (*stores, error) {
	s := &stores{sink: results.Multi{results.NewJSONFile(st.ResultFile)}}

	if st.ResultSQLite != "" {
		db, err := results.OpenSQLite(st.ResultSQLite)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.sink = append(s.sink, db)
		s.history = db
		s.lookup = db
	}
	if st.ResultPostgresURL != "" {
		pool, err := pgxpool.New(ctx, st.ResultPostgresURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		pg := results.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		s.sink = append(s.sink, pg)
		s.lookup = pg
	}
	return s, nil
}
