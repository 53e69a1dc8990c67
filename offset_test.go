package eventdex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetFilename(t *testing.T) {
	testData := []struct {
		offset   Offset
		filename string
	}{
		{offset: Offset{0}, filename: "@0.idx"},
		{offset: Offset{2, 0}, filename: "@2,0.idx"},
		{offset: Offset{10, 3, 7}, filename: "@10,3,7.idx"},
	}

	for _, tt := range testData {
		t.Run(tt.filename, func(t *testing.T) {
			require.Equal(t, tt.filename, tt.offset.Filename())

			o, err := ParseOffsetFilename(tt.filename)
			require.NoError(t, err)
			require.True(t, tt.offset.Equal(o))
		})
	}
}

func TestParseOffsetFilenameErrors(t *testing.T) {
	for _, name := range []string{
		"",
		"@.idx",
		"2,0.idx",
		"@2,0",
		"@2,,0.idx",
		"@2,-1.idx",
		"@a.idx",
		"@01.idx",
		"@+1.idx",
		"timestamp.idx",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOffsetFilename(name)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestOffsetClone(t *testing.T) {
	o := Offset{1, 2}
	c := o.Clone()
	c[1] = 5

	require.Equal(t, Offset{1, 2}, o)
	require.False(t, o.Equal(c))
	require.False(t, o.Equal(Offset{1}))
}
