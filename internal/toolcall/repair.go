package toolcall

import "strings"

// Repair applies the narrow textual fixes we have actually seen models need,
// in order, and nothing more. It is a pre-parse normalization step, not a
// JSON parser; anything it cannot fix still fails the second parse.
//
// Targeted patterns:
//  1. apostrophes escaped as \' — not a legal JSON escape, models produce it
//     constantly in contractions ("the dragon\'s lair");
//  2. raw newline/carriage-return/tab characters inside string literals,
//     which models emit when the code payload spans lines.
func Repair(raw string) string {
	fixed := unescapeApostrophes(raw)
	return escapeControlCharsInStrings(fixed)
}

// unescapeApostrophes rewrites \' to '. The walk is escape-aware so the
// backslash of a legal \\ sequence is never consumed: "dir\\'s" keeps its
// escaped backslash and only an unescaped \' is rewritten.
func unescapeApostrophes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			b.WriteByte(c)
			escaped = true
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}

// escapeControlCharsInStrings walks the input tracking JSON string state and
// replaces literal control characters inside strings with their escape
// sequences. Characters outside strings are left untouched.
func escapeControlCharsInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}

		switch {
		case inString && r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r == '\n':
			b.WriteString(`\n`)
		case inString && r == '\r':
			b.WriteString(`\r`)
		case inString && r == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}
