package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/sqltext/pkg/config"
	"github.com/umputun/sqltext/pkg/refdb"
	"github.com/umputun/sqltext/pkg/textops"
)

func TestProcess_Run(t *testing.T) {
	ctx := context.Background()
	conf, err := config.New("testdata/casebook.yml", nil)
	require.NoError(t, err)

	t.Run("local only", func(t *testing.T) {
		var buf bytes.Buffer
		p := Process{Concurrency: 2, Casebook: conf, Out: &buf, Monochrome: true, Verbose: true}
		res, err := p.Run(ctx)
		require.NoError(t, err, buf.String())
		assert.Equal(t, ProcResp{Suites: 7, Cases: 18, Passed: 18}, res)
		t.Log(buf.String())
		assert.Contains(t, buf.String(), `[overlay] run suite "overlay", mode: char, cases: 3`)
		assert.Contains(t, buf.String(), `[overlay] ok   "text" = "Text"`)
		assert.Contains(t, buf.String(), `[position-binary] ok   "raw" = 2`)
		assert.Contains(t, buf.String(), `[substring] completed suite "substring", cases: 6, failed: 0`)
	})

	t.Run("with sqlite reference", func(t *testing.T) {
		ref, err := refdb.New(filepath.Join(t.TempDir(), "ref.db"))
		require.NoError(t, err)
		defer ref.Close()

		var buf bytes.Buffer
		p := Process{Concurrency: 4, Casebook: conf, Reference: ref, Out: &buf, Monochrome: true}
		res, err := p.Run(ctx)
		require.NoError(t, err, buf.String())
		assert.Equal(t, 18, res.Passed)
		assert.Equal(t, 14, res.RefChecked)
		assert.Equal(t, 4, res.RefSkipped, "negative start, negative length, zero start overlay and key")
	})

	t.Run("only and skip", func(t *testing.T) {
		var buf bytes.Buffer
		p := Process{Casebook: conf, Out: &buf, Monochrome: true, Only: []string{"position", "keys"}, Skip: []string{"keys"}}
		res, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcResp{Suites: 1, Cases: 3, Passed: 3}, res)
		assert.NotContains(t, buf.String(), "[keys]")
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		var buf bytes.Buffer
		p := Process{Concurrency: 1, Casebook: conf, Out: &buf, Monochrome: true}
		_, err := p.Run(cctx)
		assert.Error(t, err)
	})
}

func TestProcess_RunFailing(t *testing.T) {
	conf, err := config.New("testdata/failing.yml", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	p := Process{Concurrency: 1, Casebook: conf, Out: &buf, Monochrome: true}
	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ProcResp{Suites: 2, Cases: 5, Passed: 2, Failed: 3}, res)

	assert.Contains(t, err.Error(), `suite "bad", case "wrong position": expected 3, got 2`)
	assert.Contains(t, err.Error(), `suite "bad", case "wrong substring": expected "bcd", got "bc"`)
	assert.Contains(t, err.Error(), `suite "bad", case "missing error": expected error, got "bc"`)
	assert.Contains(t, buf.String(), `[bad] FAIL "wrong position": expected 3, got 2`)
	assert.Contains(t, buf.String(), `[bad] completed suite "bad", cases: 4, failed: 3`)
	assert.Contains(t, buf.String(), `[good] completed suite "good", cases: 1, failed: 0`)
}

func TestProcess_ReferenceMismatch(t *testing.T) {
	conf, err := config.New("testdata/casebook.yml", nil)
	require.NoError(t, err)

	ref := &fakeReference{
		position: func(_ textops.Mode, needle, haystack []byte) (int, error) {
			return textops.BinPosition(textops.NewView(needle), textops.NewView(haystack)), nil // always binary
		},
		substring: func(_ textops.Mode, target []byte, pos, length int, useLen bool) ([]byte, error) {
			if pos < 1 {
				return nil, refdb.ErrUnsupported
			}
			v, err := textops.BinSubstring(textops.NewView(target), pos, length, useLen)
			return v.ByteSlice(), err
		},
	}

	var buf bytes.Buffer
	p := Process{Concurrency: 1, Casebook: conf, Reference: ref, Out: &buf, Monochrome: true, Only: []string{"position", "substring-char", "substring"}}
	res, err := p.Run(context.Background())
	require.Error(t, err)
	t.Log(err)

	assert.Equal(t, 11, res.Cases)
	assert.Equal(t, 3, res.Failed)
	assert.Contains(t, err.Error(), `suite "position", case "multibyte": fake returned 4, local 3`)
	assert.Contains(t, err.Error(), `suite "substring-char", case "multibyte": fake returned "él", local "éll"`)
	assert.Contains(t, err.Error(), `suite "substring-char", case "cjk": fake returned`)
	assert.Equal(t, 2, res.RefSkipped, "pos < 1 cases")
}

func TestEvalCase(t *testing.T) {
	length := 2
	tbl := []struct {
		name string
		cs   config.Case
		ops  textops.Ops
		res  string
	}{
		{"position", config.Case{Op: config.OpPosition, Needle: "é", Haystack: "héllo"}, textops.Chars{}, "2"},
		{"length bin", config.Case{Op: config.OpLength, Target: "héllo"}, textops.Binary{}, "6"},
		{"substring", config.Case{Op: config.OpSubstring, Target: "héllo", Pos: 2, Len: &length}, textops.Chars{}, `"él"`},
		{"overlay hex", config.Case{Op: config.OpOverlay, Target: "616263", Placing: "ff", Start: 2, Len: &length, Hex: true},
			textops.Binary{}, "61ff"},
		{"key without fn", config.Case{Op: config.OpKey, Key: "a_b"}, textops.Chars{}, `error: no key fn for "a_b"`},
		{"unknown op", config.Case{Op: "blah"}, textops.Chars{}, `error: unknown op "blah"`},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.res, evalCase(tt.ops, tt.cs).render(tt.cs.Hex))
		})
	}
}

type fakeReference struct {
	position  func(mode textops.Mode, needle, haystack []byte) (int, error)
	substring func(mode textops.Mode, target []byte, pos, length int, useLen bool) ([]byte, error)
}

func (f *fakeReference) Type() string { return "fake" }

func (f *fakeReference) Position(_ context.Context, mode textops.Mode, needle, haystack []byte) (int, error) {
	return f.position(mode, needle, haystack)
}

func (f *fakeReference) Substring(_ context.Context, mode textops.Mode, target []byte, pos, length int, useLen bool) ([]byte, error) {
	return f.substring(mode, target, pos, length, useLen)
}

func (f *fakeReference) Overlay(context.Context, textops.Mode, []byte, []byte, int, int) ([]byte, error) {
	return nil, refdb.ErrUnsupported
}

func (f *fakeReference) Length(context.Context, textops.Mode, []byte) (int, error) {
	return 0, refdb.ErrUnsupported
}
