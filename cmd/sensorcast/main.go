package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tunogya/sensorcast/pkg/config"
	"github.com/tunogya/sensorcast/pkg/logging"
)

// app holds state shared by every subcommand, filled in before any RunE
var app struct {
	cfg     *config.Config
	log     *slog.Logger
	logFile *os.File
}

var rootFlags struct {
	storeDriver string
	storeDSN    string
	logLevel    string
	logFormat   string
}

var rootCmd = &cobra.Command{
	Use:   "sensorcast",
	Short: "Sensor ingestion, history and forecasting service",
	Long: `sensorcast stores temperature, humidity and light readings, serves
bucketed history and short to long horizon forecasts per sensor kind.

Settings come from the environment (STORE_DRIVER, STORE_DSN, AUTH_TOKEN, ...);
flags override them.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.logFile != nil {
			app.logFile.Close()
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.storeDriver, "store-driver", "", "sample store: duckdb, postgres or sqlite (env STORE_DRIVER)")
	f.StringVar(&rootFlags.storeDSN, "store-dsn", "", "store path or connection string (env STORE_DSN)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "text or json (env LOG_FORMAT)")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("store-driver") {
		cfg.StoreDriver = rootFlags.storeDriver
	}
	if flags.Changed("store-dsn") {
		cfg.StoreDSN = rootFlags.storeDSN
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = rootFlags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = rootFlags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out, file, err := logging.Output(cfg.LogFile)
	if err != nil {
		return err
	}
	app.cfg = cfg
	app.logFile = file
	app.log = logging.New(out, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(app.log)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
