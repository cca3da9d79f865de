package textops

import (
	"bytes"
	"fmt"
)

// ByteView is an immutable window over a byte buffer. Sub-views share the same storage,
// nothing is copied until ByteSlice is called.
// Callers must not mutate the underlying buffer while a view is in use.
type ByteView struct {
	b []byte
}

// NewView makes a view over the whole buffer.
func NewView(b []byte) ByteView {
	return ByteView{b: b[:len(b):len(b)]}
}

// ViewString makes a view over the bytes of s.
func ViewString(s string) ByteView {
	return ByteView{b: []byte(s)}
}

// Window makes a view over buf[start:end]. Returns an error wrapping ErrInvalidArgument
// unless 0 <= start <= end <= len(buf).
func Window(buf []byte, start, end int) (ByteView, error) {
	if start < 0 || end < start || end > len(buf) {
		return ByteView{}, fmt.Errorf("window [%d:%d] out of buffer bounds %d: %w", start, end, len(buf), ErrInvalidArgument)
	}
	return ByteView{b: buf[start:end:end]}, nil
}

// Len returns the view length in bytes.
func (v ByteView) Len() int {
	return len(v.b)
}

// At returns the byte at index i of the view.
func (v ByteView) At(i int) byte {
	return v.b[i]
}

// Slice returns a sub-view [from:to) sharing the same storage. The capacity is capped,
// appending to the result's bytes never writes into the source.
func (v ByteView) Slice(from, to int) ByteView {
	return ByteView{b: v.b[from:to:to]}
}

// ByteSlice returns a copy of the view bytes.
func (v ByteView) ByteSlice() []byte {
	c := make([]byte, len(v.b))
	copy(c, v.b)
	return c
}

// Equal reports whether both views hold the same bytes.
func (v ByteView) Equal(other ByteView) bool {
	return bytes.Equal(v.b, other.b)
}

func (v ByteView) String() string {
	return string(v.b)
}
