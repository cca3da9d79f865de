package textops

import (
	"fmt"
	"strings"
)

// Mode selects how positions and lengths are counted.
type Mode string

// enum of supported modes
const (
	ModeBinary Mode = "binary"
	ModeChar   Mode = "char"
)

// ParseMode makes Mode from a name, case-insensitive. Empty name means ModeChar.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "char", "character", "utf8":
		return ModeChar, nil
	case "binary", "bin", "byte", "bytes":
		return ModeBinary, nil
	default:
		return "", fmt.Errorf("unknown mode %q", name)
	}
}

// Ops is the set of SQL text functions for one Mode.
type Ops interface {
	Mode() Mode
	Position(needle, haystack ByteView) int
	Substring(target ByteView, pos, length int, useLen bool) (ByteView, error)
	Overlay(target, placing ByteView, start, replaceLength int) (ByteView, error)
	Length(v ByteView) int
}

// ForMode returns Ops implementation for the mode.
func ForMode(m Mode) (Ops, error) {
	switch m {
	case ModeBinary:
		return Binary{}, nil
	case ModeChar:
		return Chars{}, nil
	default:
		return nil, fmt.Errorf("unsupported mode %q", m)
	}
}

// Binary counts positions and lengths in bytes, OCTET_LENGTH semantics for Length.
type Binary struct{}

// Mode returns ModeBinary.
func (Binary) Mode() Mode { return ModeBinary }

// Position is BinPosition.
func (Binary) Position(needle, haystack ByteView) int { return BinPosition(needle, haystack) }

// Substring is BinSubstring.
func (Binary) Substring(target ByteView, pos, length int, useLen bool) (ByteView, error) {
	return BinSubstring(target, pos, length, useLen)
}

// Overlay is BinOverlay.
func (Binary) Overlay(target, placing ByteView, start, replaceLength int) (ByteView, error) {
	return BinOverlay(target, placing, start, replaceLength)
}

// Length returns number of bytes.
func (Binary) Length(v ByteView) int { return v.Len() }

// Chars counts positions and lengths in UTF-8 codepoints, CHAR_LENGTH semantics for Length.
type Chars struct{}

// Mode returns ModeChar.
func (Chars) Mode() Mode { return ModeChar }

// Position is UTF8Position.
func (Chars) Position(needle, haystack ByteView) int { return UTF8Position(needle, haystack) }

// Substring is UTF8Substring.
func (Chars) Substring(target ByteView, pos, length int, useLen bool) (ByteView, error) {
	return UTF8Substring(target, pos, length, useLen)
}

// Overlay is UTF8Overlay.
func (Chars) Overlay(target, placing ByteView, start, replaceLength int) (ByteView, error) {
	return UTF8Overlay(target, placing, start, replaceLength)
}

// Length returns number of codepoints.
func (Chars) Length(v ByteView) int { return CharLength(v) }
