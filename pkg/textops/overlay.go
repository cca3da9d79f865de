package textops

import "fmt"

type substringFunc func(target ByteView, pos, length int, useLen bool) (ByteView, error)

// BinOverlay implements SQL OVERLAY(target PLACING placing FROM start FOR replaceLength) with
// start and replaceLength in bytes. The result is a new buffer:
// SUBSTRING(target FROM 1 FOR start-1) || placing || SUBSTRING(target FROM start+replaceLength).
// A start below 1 makes the prefix length negative and fails with ErrInvalidArgument.
func BinOverlay(target, placing ByteView, start, replaceLength int) (ByteView, error) {
	return overlay(BinSubstring, target, placing, start, replaceLength)
}

// UTF8Overlay is BinOverlay with start and replaceLength counted in codepoints.
// placing is inserted as is.
func UTF8Overlay(target, placing ByteView, start, replaceLength int) (ByteView, error) {
	return overlay(UTF8Substring, target, placing, start, replaceLength)
}

func overlay(substr substringFunc, target, placing ByteView, start, replaceLength int) (ByteView, error) {
	prefix, err := substr(target, 1, addSat(start, -1), true)
	if err != nil {
		return ByteView{}, fmt.Errorf("overlay from %d: %w", start, err)
	}
	suffix, err := substr(target, addSat(start, replaceLength), -1, false)
	if err != nil {
		return ByteView{}, fmt.Errorf("overlay from %d for %d: %w", start, replaceLength, err)
	}

	res := make([]byte, 0, prefix.Len()+placing.Len()+suffix.Len())
	res = append(res, prefix.b...)
	res = append(res, placing.b...)
	res = append(res, suffix.b...)
	return ByteView{b: res}, nil
}
