package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	logFormat  string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bundlemon",
		Short:         "Back-run a mempool trigger with a private Flashbots bundle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Set the logging level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Set the log output format (json or text)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file")

	rootCmd.AddCommand(newWatchCmd(), newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("bundlemon failed")
		os.Exit(1)
	}
}

func setupLogging() {
	if strings.EqualFold(logFormat, "text") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	switch strings.TrimSpace(strings.ToUpper(logLevel)) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func maskHex(h string) string {
	h = strings.TrimSpace(h)
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "…" + h[len(h)-4:]
}
