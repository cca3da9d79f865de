package textops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tbl := []struct {
		in   string
		mode Mode
		err  bool
	}{
		{"", ModeChar, false},
		{"char", ModeChar, false},
		{"UTF8", ModeChar, false},
		{" binary ", ModeBinary, false},
		{"bytes", ModeBinary, false},
		{"blah", "", true},
	}
	for _, tt := range tbl {
		m, err := ParseMode(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.mode, m)
	}
}

func TestForMode(t *testing.T) {
	hello := ViewString("héllo")

	t.Run("binary", func(t *testing.T) {
		ops, err := ForMode(ModeBinary)
		require.NoError(t, err)
		assert.Equal(t, ModeBinary, ops.Mode())
		assert.Equal(t, 6, ops.Length(hello))
		assert.Equal(t, 4, ops.Position(ViewString("l"), hello))
		res, err := ops.Substring(hello, 2, 2, true)
		require.NoError(t, err)
		assert.Equal(t, "é", res.String())
		res, err = ops.Overlay(hello, ViewString("a"), 2, 2)
		require.NoError(t, err)
		assert.Equal(t, "hallo", res.String())
	})

	t.Run("char", func(t *testing.T) {
		ops, err := ForMode(ModeChar)
		require.NoError(t, err)
		assert.Equal(t, ModeChar, ops.Mode())
		assert.Equal(t, 5, ops.Length(hello))
		assert.Equal(t, 3, ops.Position(ViewString("l"), hello))
		res, err := ops.Substring(hello, 2, 2, true)
		require.NoError(t, err)
		assert.Equal(t, "él", res.String())
		res, err = ops.Overlay(hello, ViewString("a"), 2, 1)
		require.NoError(t, err)
		assert.Equal(t, "hallo", res.String())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ForMode("blah")
		assert.Error(t, err)
	})
}
