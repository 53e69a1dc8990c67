package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile string
		cfg        = defaultConfig()
		flagCfg    = defaultConfig()
		logger     = zap.NewNop()
	)

	rootCmd := &cobra.Command{
		Use:   "eventdex",
		Short: `eventdex builds bitmap indexes over streams of network events.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(configFile, &cfg); err != nil {
				return err
			}

			// flags given explicitly override the config file.
			flags := cmd.Flags()
			if flags.Changed("dir") {
				cfg.Dir = flagCfg.Dir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = flagCfg.LogLevel
			}
			if flags.Changed("queue-size") {
				cfg.QueueSize = flagCfg.QueueSize
			}
			if flags.Changed("store-every") {
				cfg.StoreEvery = flagCfg.StoreEvery
			}
			if flags.Changed("debug-listen") {
				cfg.DebugListen = flagCfg.DebugListen
			}

			l, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = l

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("showing help failed: %v", err)
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVarP(&flagCfg.Dir, "dir", "d", flagCfg.Dir, "index directory")
	rootCmd.PersistentFlags().StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "log level (debug, info, warn, error)")

	ingestCmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: `Index Zeek logs. Files ending in .gz or .zst are decompressed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no input file provided")
			}

			return ingestCmd(cmd.Context(), &cfg, logger, args)
		},
	}

	ingestCmd.Flags().IntVar(&flagCfg.QueueSize, "queue-size", flagCfg.QueueSize, "number of events buffered per fragment")
	ingestCmd.Flags().IntVar(&flagCfg.StoreEvery, "store-every", flagCfg.StoreEvery, "store the index after this many events; 0 stores only at the end")
	ingestCmd.Flags().StringVar(&flagCfg.DebugListen, "debug-listen", "", "listen address for debug HTTP server exposing prometheus metrics")

	var columnsCfg columnsConfig

	columnsCmd := &cobra.Command{
		Use:   "columns",
		Short: `List the columns of all fragments of an index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return columnsCmd(&cfg, logger, &columnsCfg)
		},
	}

	columnsCmd.Flags().BoolVarP(&columnsCfg.full, "full", "f", false, "list every distinct value of every column")

	runsCmd := &cobra.Command{
		Use:   "runs <fragment> <column> [value]",
		Short: `Show the bit runs of a column's presence mask, or of the bitmap of one value.`,
		Long: `Show the bit runs of a column's presence mask, or of the bitmap of one value.

The fragment is one of meta, type or args/<event name>. Argument columns
are named by their offset, e.g. 1,0. Values use the literal syntax of
lookup expressions, e.g. "zeek::conn", 53/udp or 10.0.0.1.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runsCmd(&cfg, logger, args)
		},
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup <expression>",
		Short: `Evaluate a lookup expression against every fragment of an index.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lookupCmd(&cfg, logger, args[0])
		},
	}

	rootCmd.AddCommand(ingestCmd, columnsCmd, runsCmd, lookupCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
