package openfile_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/akrennmair/eventdex/internal/openfile"
	"github.com/stretchr/testify/require"
)

func TestExclusive(t *testing.T) {
	name := filepath.Join(t.TempDir(), "x")

	f, err := openfile.Exclusive()(name, os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = openfile.Exclusive()(name, os.O_RDWR|os.O_CREATE, 0644)
	require.True(t, errors.Is(err, fs.ErrExist))
}

func TestExisting(t *testing.T) {
	name := filepath.Join(t.TempDir(), "x")

	_, err := openfile.Existing()(name, os.O_RDWR|os.O_CREATE, 0644)
	require.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, os.WriteFile(name, []byte("data"), 0644))

	f, err := openfile.Existing()(name, os.O_RDONLY, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
