package textops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinOverlay(t *testing.T) {
	tbl := []struct {
		name                 string
		target, placing, res string
		start, length        int
	}{
		{"replace middle", "Txxxxxt", "ex", "Text", 2, 5},
		{"insert", "abc", "X", "aXbc", 2, 0},
		{"replace first", "abc", "X", "Xbc", 1, 1},
		{"append past end", "abc", "X", "abcX", 10, 2},
		{"empty placing", "abcdef", "", "aef", 2, 3},
		{"negative replace length", "abcdef", "X", "abXbcdef", 3, -1},
		{"bytes of multibyte", "héllo", "EE", "hEE\xa9llo", 2, 1},
		{"replace to the end with max length", "abcdef", "X", "aX", 2, math.MaxInt},
		{"min length", "abcdef", "X", "aXabcdef", 2, math.MinInt},
		{"max start", "abc", "X", "abcX", math.MaxInt, 1},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			res, err := BinOverlay(ViewString(tt.target), ViewString(tt.placing), tt.start, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.res, res.String())
		})
	}
}

func TestUTF8Overlay(t *testing.T) {
	tbl := []struct {
		name                 string
		target, placing, res string
		start, length        int
	}{
		{"ascii", "Txxxxxt", "ex", "Text", 2, 5},
		{"multibyte", "héllo", "EE", "hEEllo", 2, 1},
		{"cjk", "日本語", "x", "日x語", 2, 1},
		{"append", "日本", "語", "日本語", 3, 0},
		{"replace to the end with max length", "héllo", "X", "hX", 2, math.MaxInt},
		{"max start", "日本", "語", "日本語", math.MaxInt, math.MaxInt},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			res, err := UTF8Overlay(ViewString(tt.target), ViewString(tt.placing), tt.start, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.res, res.String())
		})
	}
}

func TestOverlay_StartBeforeString(t *testing.T) {
	_, err := BinOverlay(ViewString("abc"), ViewString("X"), 0, 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = UTF8Overlay(ViewString("abc"), ViewString("X"), -2, 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = BinOverlay(ViewString("abc"), ViewString("X"), math.MinInt, 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = UTF8Overlay(ViewString("abc"), ViewString("X"), math.MinInt, math.MaxInt)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOverlay_Inverse(t *testing.T) {
	for _, s := range []string{"a", "abcdef", "héllo"} {
		for start := 1; start <= len(s); start++ {
			for length := 0; start+length <= len(s)+1; length++ {
				placing, err := BinSubstring(ViewString(s), start, length, true)
				require.NoError(t, err)
				require.Equal(t, length, placing.Len())

				res, err := BinOverlay(ViewString(s), placing, start, length)
				require.NoError(t, err)
				assert.Equal(t, s, res.String(), "%q from %d for %d", s, start, length)
			}
		}
	}
}

func TestOverlay_InverseChars(t *testing.T) {
	for _, s := range []string{"é", "héllo", "日本語", "a🙂b€c"} {
		n := CharLength(ViewString(s))
		for start := 1; start <= n; start++ {
			for length := 0; start+length <= n+1; length++ {
				placing, err := UTF8Substring(ViewString(s), start, length, true)
				require.NoError(t, err)
				require.Equal(t, length, CharLength(placing))

				res, err := UTF8Overlay(ViewString(s), placing, start, length)
				require.NoError(t, err)
				assert.Equal(t, s, res.String(), "%q from %d for %d", s, start, length)
			}
		}
	}
}

func TestOverlay_Allocates(t *testing.T) {
	src := []byte("abc")
	res, err := BinOverlay(NewView(src), ByteView{}, 1, 0)
	require.NoError(t, err)
	require.Equal(t, "abc", res.String())
	res.b[0] = 'X'
	assert.Equal(t, "abc", string(src))
}
