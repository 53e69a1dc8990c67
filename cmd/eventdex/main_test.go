package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/bitmap"
	"github.com/akrennmair/eventdex/value"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg := defaultConfig()
	require.NoError(t, loadConfig("", &cfg))
	require.Equal(t, defaultConfig(), cfg)

	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte("dir = \"/var/lib/eventdex\"\nlog-level = \"debug\"\nstore-every = 0\n"), 0644))

	require.NoError(t, loadConfig(good, &cfg))
	require.Equal(t, "/var/lib/eventdex", cfg.Dir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 0, cfg.StoreEvery)
	require.Equal(t, 64, cfg.QueueSize)

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("queue_size = 3\n"), 0644))
	require.Error(t, loadConfig(unknown, &cfg))

	require.Error(t, loadConfig(filepath.Join(dir, "missing.toml"), &cfg))
}

func TestOpenIndexDoesNotCreate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Dir = t.TempDir()

	_, err := openIndex(&cfg, zaptest.NewLogger(t))
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	cfg.Dir = filepath.Join(cfg.Dir, "missing")
	_, err = openIndex(&cfg, zaptest.NewLogger(t))
	require.Error(t, err)

	_, err = os.Stat(cfg.Dir)
	require.True(t, os.IsNotExist(err))
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = newLogger("loud")
	require.Error(t, err)
}

func TestRunsTable(t *testing.T) {
	bm := bitmap.New()
	bm.AppendRun(false, 128)
	bm.AppendBit(true)
	bm.AppendBit(false)
	bm.AppendBit(true)

	header, data := runsTable(bm)
	require.Equal(t, []string{"START", "LENGTH", "BITS", "ONES"}, header)
	require.Equal(t, [][]string{
		{"0", "128", "0", "0"},
		{"128", "3", "101", "2"},
	}, data)
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()

	log := strings.Join([]string{
		"#separator \\x09",
		"#path\tdns",
		"#fields\tts\tquery\trcode",
		"#types\ttime\tstring\tcount",
		"1258531221.5\texample.com\t0",
		"not a number\texample.org\t0",
		"1258531222.5\texample.net\t3",
	}, "\n") + "\n"

	input := filepath.Join(dir, "dns.log")
	require.NoError(t, os.WriteFile(input, []byte(log), 0644))

	cfg := defaultConfig()
	cfg.Dir = filepath.Join(dir, "index")
	cfg.StoreEvery = 1

	logger := zaptest.NewLogger(t)

	require.NoError(t, ingestCmd(context.Background(), &cfg, logger, []string{input}))

	// a second run continues with the next free ID.
	require.NoError(t, ingestCmd(context.Background(), &cfg, logger, []string{input}))

	idx, err := openIndex(&cfg, logger)
	require.NoError(t, err)
	require.Equal(t, uint64(4), idx.NextID())

	args, ok := idx.Arguments("zeek::dns")
	require.True(t, ok)

	col, ok := args.Column(eventdex.Offset{2})
	require.True(t, ok)

	bm, err := col.Lookup(value.Uint(3))
	require.NoError(t, err)
	require.Equal(t, "0101", bm.String())

	_, err = findColumn(idx, "args/zeek::dns", "1")
	require.NoError(t, err)
	_, err = findColumn(idx, "meta", "name")
	require.NoError(t, err)
	_, err = findColumn(idx, "type", "nope")
	require.Error(t, err)
	_, err = findColumn(idx, "args/zeek::conn", "0")
	require.Error(t, err)
	_, err = findColumn(idx, "other", "0")
	require.Error(t, err)

	require.Error(t, ingestCmd(context.Background(), &cfg, logger, []string{filepath.Join(dir, "missing.log")}))
}

func TestIngestInterrupted(t *testing.T) {
	dir := t.TempDir()

	log := "#separator \\x09\n#path\tdns\n#fields\tquery\n#types\tstring\nexample.com\n"

	input := filepath.Join(dir, "dns.log")
	require.NoError(t, os.WriteFile(input, []byte(log), 0644))

	cfg := defaultConfig()
	cfg.Dir = filepath.Join(dir, "index")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, ingestCmd(ctx, &cfg, zaptest.NewLogger(t), []string{input}))

	// the index was still created and stored.
	_, err := os.Stat(filepath.Join(cfg.Dir, "meta", "name.idx"))
	require.NoError(t, err)
}
