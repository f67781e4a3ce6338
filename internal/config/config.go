package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
)

// Settings keeps all configuration options. Every key can come from the TOML
// file or the environment; the environment wins.
type Settings struct {
	RPCURL           string `toml:"rpc_url" env:"RPC_URL"`
	WSURL            string `toml:"ws_url" env:"WS_URL"`
	RelayURL         string `toml:"relay_url" env:"RELAY_URL"`
	FlashbotsAuthPK  string `toml:"flashbots_auth_pk" env:"FLASHBOTS_AUTH_PK"`
	SignerPrivateKey string `toml:"signer_private_key" env:"SIGNER_PRIVATE_KEY"`
	ChainID          int64  `toml:"chain_id" env:"CHAIN_ID"` // 0 = ask the node

	TargetContract  string `toml:"target_contract" env:"TARGET_CONTRACT"`
	TriggerMethod   string `toml:"trigger_method" env:"TRIGGER_METHOD"`
	TriggerSelector string `toml:"trigger_selector" env:"TRIGGER_SELECTOR"` // overrides TriggerMethod
	ContractABI     string `toml:"contract_abi" env:"CONTRACT_ABI"`

	CompanionMethod   string   `toml:"companion_method" env:"COMPANION_METHOD"`
	CompanionArgs     []string `toml:"companion_args" env:"COMPANION_ARGS" envSeparator:","`
	CompanionValueETH string   `toml:"companion_value_eth" env:"COMPANION_VALUE_ETH"`
	GasLimit          uint64   `toml:"gas_limit" env:"GAS_LIMIT"`

	GasUplift              string `toml:"gas_uplift" env:"GAS_UPLIFT"`
	DefaultMaxFeeGwei      string `toml:"default_max_fee_gwei" env:"DEFAULT_MAX_FEE_GWEI"`
	DefaultPriorityFeeGwei string `toml:"default_priority_fee_gwei" env:"DEFAULT_PRIORITY_FEE_GWEI"`

	BundleTimeoutSeconds int    `toml:"bundle_timeout_seconds" env:"BUNDLE_TIMEOUT_SECONDS"`
	Mode                 string `toml:"mode" env:"MODE"`
	Workers              int    `toml:"workers" env:"WORKERS"`
	HashBuffer           int    `toml:"hash_buffer" env:"HASH_BUFFER"`
	LookupRPS            int    `toml:"lookup_rps" env:"LOOKUP_RPS"` // 0 = unlimited

	ResultFile        string `toml:"result_file" env:"RESULT_FILE"`
	ResultSQLite      string `toml:"result_sqlite" env:"RESULT_SQLITE"`
	ResultPostgresURL string `toml:"result_postgres_url" env:"RESULT_POSTGRES_URL"`
	StatusAddr        string `toml:"status_addr" env:"STATUS_ADDR"`

	NetBlocks      int   `toml:"net_blocks" env:"NET_BLOCKS"`
	NetPercentiles []int `toml:"net_percentiles" env:"NET_PERCENTILES" envSeparator:","`
}

// Defaults mirrors the presale setup the monitor was first written for.
func Defaults() Settings {
	return Settings{
		RelayURL:               "https://relay.flashbots.net",
		TriggerMethod:          "enablePresale",
		CompanionMethod:        "presale",
		CompanionArgs:          []string{"1"},
		CompanionValueETH:      "0.01",
		GasLimit:               300000,
		GasUplift:              "1.2",
		DefaultMaxFeeGwei:      "50",
		DefaultPriorityFeeGwei: "2",
		BundleTimeoutSeconds:   60,
		Mode:                   string(bundlecore.ModeSingleShot),
		Workers:                8,
		HashBuffer:             4096,
		ResultFile:             "bundle_results.json",
		NetBlocks:              100,
		NetPercentiles:         []int{50, 95, 99},
	}
}

// Load layers defaults, the optional TOML file at path, .env and .env.local,
// then the process environment.
func Load(path string) (Settings, error) {
	st := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(b, &st); err != nil {
			return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
	if err := env.Parse(&st); err != nil {
		return Settings{}, fmt.Errorf("environment: %w", err)
	}
	st.trim()
	return st, nil
}

func (s *Settings) trim() {
	for _, p := range []*string{
		&s.RPCURL, &s.WSURL, &s.RelayURL, &s.FlashbotsAuthPK, &s.SignerPrivateKey,
		&s.TargetContract, &s.TriggerMethod, &s.TriggerSelector, &s.CompanionMethod,
		&s.CompanionValueETH, &s.GasUplift, &s.DefaultMaxFeeGwei, &s.DefaultPriorityFeeGwei, &s.Mode,
	} {
		*p = strings.TrimSpace(*p)
	}
	for i := range s.CompanionArgs {
		s.CompanionArgs[i] = strings.TrimSpace(s.CompanionArgs[i])
	}
}

// Validate reports every invalid field at once. The signer key is not checked
// here since it may be prompted for.
func (s Settings) Validate() error {
	var errs []error
	if s.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is required"))
	}
	if s.RelayURL == "" {
		errs = append(errs, errors.New("RELAY_URL is required"))
	}
	if !common.IsHexAddress(s.TargetContract) {
		errs = append(errs, fmt.Errorf("TARGET_CONTRACT %q is not an address", s.TargetContract))
	}
	if s.TriggerSelector == "" && s.TriggerMethod == "" {
		errs = append(errs, errors.New("one of TRIGGER_METHOD or TRIGGER_SELECTOR is required"))
	}
	if s.TriggerSelector != "" {
		if _, err := bundlecore.ParseSelector(s.TriggerSelector); err != nil {
			errs = append(errs, fmt.Errorf("TRIGGER_SELECTOR: %w", err))
		}
	}
	if s.CompanionMethod == "" {
		errs = append(errs, errors.New("COMPANION_METHOD is required"))
	}
	if _, err := bundlecore.ParseETH(s.CompanionValueETH); err != nil {
		errs = append(errs, fmt.Errorf("COMPANION_VALUE_ETH: %w", err))
	}
	if s.GasLimit == 0 {
		errs = append(errs, errors.New("GAS_LIMIT must be positive"))
	}
	if u, err := decimal.NewFromString(s.GasUplift); err != nil || u.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("GAS_UPLIFT %q must be a number >= 1", s.GasUplift))
	}
	if _, err := s.DefaultFees(); err != nil {
		errs = append(errs, err)
	}
	if s.BundleTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("BUNDLE_TIMEOUT_SECONDS must be positive"))
	}
	if _, err := bundlecore.ParseMode(s.Mode); err != nil {
		errs = append(errs, fmt.Errorf("MODE: %w", err))
	}
	if s.Workers <= 0 {
		errs = append(errs, errors.New("WORKERS must be positive"))
	}
	if s.HashBuffer <= 0 {
		errs = append(errs, errors.New("HASH_BUFFER must be positive"))
	}
	if s.LookupRPS < 0 {
		errs = append(errs, errors.New("LOOKUP_RPS must not be negative"))
	}
	return errors.Join(errs...)
}

// DefaultFees parses the fallback fee schedule.
func (s Settings) DefaultFees() (bundlecore.FeeSchedule, error) {
	maxFee, err := bundlecore.GweiToWei(s.DefaultMaxFeeGwei)
	if err != nil {
		return bundlecore.FeeSchedule{}, fmt.Errorf("DEFAULT_MAX_FEE_GWEI: %w", err)
	}
	prio, err := bundlecore.GweiToWei(s.DefaultPriorityFeeGwei)
	if err != nil {
		return bundlecore.FeeSchedule{}, fmt.Errorf("DEFAULT_PRIORITY_FEE_GWEI: %w", err)
	}
	f := bundlecore.FeeSchedule{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: prio}
	if !f.Valid() {
		return bundlecore.FeeSchedule{}, errors.New("default fees need max >= priority > 0")
	}
	return f, nil
}

// Uplift parses GAS_UPLIFT.
func (s Settings) Uplift() (decimal.Decimal, error) {
	return decimal.NewFromString(s.GasUplift)
}

func (s Settings) BundleTimeout() time.Duration {
	return time.Duration(s.BundleTimeoutSeconds) * time.Second
}
