package framed

import (
	"strings"
)

// The reserved bytes of the protocol.  Field content containing any of these
// (or any byte below 0x20) is escaped on the wire.
const (
	Separator  = ';'
	Terminator = '$'
	Escape     = '\\'
)

const hexDigits = "0123456789abcdef"

// escapedLength is the size of one `\xHH` escape sequence.
const escapedLength = 4

// IsReserved reports whether b must be escaped when it appears in a field.
func IsReserved(b byte) bool {
	return b < 0x20 || b == Separator || b == Terminator || b == Escape
}

// AppendEscaped appends the escaped form of field to dst and returns the
// extended slice.  Each reserved byte becomes `\x` followed by two lower-case
// hex digits; every other byte is copied as is.
func AppendEscaped(dst []byte, field string) []byte {
	for i := 0; i < len(field); i++ {
		c := field[i]
		if !IsReserved(c) {
			dst = append(dst, c)
			continue
		}
		dst = append(dst, Escape, 'x', hexDigits[c>>4], hexDigits[c&0x0f])
	}
	return dst
}

// EscapeField returns the wire-safe form of field.  It never fails, and
// UnescapeField(EscapeField(f)) == f for every f.
func EscapeField(field string) string {
	// Fast path: most fields contain nothing to escape.
	clean := true
	for i := 0; i < len(field); i++ {
		if IsReserved(field[i]) {
			clean = false
			break
		}
	}
	if clean {
		return field
	}
	return string(AppendEscaped(make([]byte, 0, len(field)+escapedLength), field))
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// decodeEscape decodes the escape sequence at the start of text, if there is
// a well-formed one.
func decodeEscape(text string) (byte, bool) {
	if len(text) < escapedLength || text[0] != Escape || text[1] != 'x' {
		return 0, false
	}
	hi, ok := unhex(text[2])
	if !ok {
		return 0, false
	}
	lo, ok := unhex(text[3])
	if !ok {
		return 0, false
	}
	return hi<<4 | lo, true
}

// UnescapeField reverses EscapeField.  A well-formed `\xHH` sequence (hex
// digits in either case) decodes to the byte it names.  An escape byte that
// does not start a well-formed sequence, including one truncated by the end of
// text, is copied through literally and decoding resumes at the byte after it.
func UnescapeField(text string) string {
	i := strings.IndexByte(text, Escape)
	if i < 0 {
		return text
	}
	out := make([]byte, 0, len(text))
	out = append(out, text[:i]...)
	for i < len(text) {
		if b, ok := decodeEscape(text[i:]); ok {
			out = append(out, b)
			i += escapedLength
			continue
		}
		out = append(out, text[i])
		i++
	}
	return string(out)
}

// Split breaks text at every non-overlapping occurrence of sep and unescapes
// each piece.  An empty final piece is dropped, so a message whose last field
// is empty does not survive a Join/Split round trip.  An empty sep yields the
// whole of text as a single field.
func Split(text, sep string) []string {
	fields := []string{}
	if sep != "" {
		for {
			i := strings.Index(text, sep)
			if i < 0 {
				break
			}
			fields = append(fields, UnescapeField(text[:i]))
			text = text[i+len(sep):]
		}
	}
	if last := UnescapeField(text); last != "" {
		fields = append(fields, last)
	}
	return fields
}

// Join concatenates fields with sep between them.  The first field is
// written without escaping, which is what deployed peers of this protocol
// expect; JoinEscaped escapes every field.
func Join(fields []string, sep string) string {
	return string(appendJoined(nil, fields, sep, JoinFirstRaw))
}

// JoinEscaped is like Join, but escapes the first field as well.
func JoinEscaped(fields []string, sep string) string {
	return string(appendJoined(nil, fields, sep, JoinEscapeAll))
}

func appendJoined(dst []byte, fields []string, sep string, mode JoinMode) []byte {
	for i, field := range fields {
		if i > 0 {
			dst = append(dst, sep...)
		}
		if i == 0 && mode == JoinFirstRaw {
			dst = append(dst, field...)
			continue
		}
		dst = AppendEscaped(dst, field)
	}
	return dst
}
