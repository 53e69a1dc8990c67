package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// config holds the settings shared by all commands. Values are read from
// the TOML file given with --config; flags set on the command line take
// precedence.
type config struct {
	Dir         string `toml:"dir"`
	LogLevel    string `toml:"log-level"`
	QueueSize   int    `toml:"queue-size"`
	StoreEvery  int    `toml:"store-every"`
	DebugListen string `toml:"debug-listen"`
}

func defaultConfig() config {
	return config{
		Dir:        "eventdex",
		LogLevel:   "info",
		QueueSize:  64,
		StoreEvery: 100000,
	}
}

func loadConfig(filename string, cfg *config) error {
	if filename == "" {
		return nil
	}

	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config key %s in %s", undecoded[0], filename)
	}

	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()

	return cfg.Build()
}

func dirExists(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("no index at %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
