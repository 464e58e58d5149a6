package source

import "bytes"

// typeHint is the result of sniffing a line's top-level "type" field.
type typeHint int

const (
	// hintUnknown means the sniff could not settle the question; the
	// caller must fall through to a full JSON parse.
	hintUnknown typeHint = iota
	// hintAssistant means the line is an assistant entry.
	hintAssistant
	// hintOther means the line has some other top-level type and can be
	// dropped without parsing it.
	hintOther
)

var typeToken = []byte("type")

// sniffType cheaply classifies a JSONL line by its top-level "type"
// value, so the bulk of the log (user turns, system entries, progress
// noise) is discarded without a JSON parse. It walks the line once,
// counting object nesting and jumping over string literals, and reads
// the value of every "type" key found at depth 1; a later settled value
// replaces an earlier one.
//
// The sniff is conservative: anything it cannot settle — no type key,
// a non-string value, an escaped value — reports hintUnknown and is
// left to the real parser. An assistant match wins immediately, so a
// line with duplicated type keys can at worst be parsed needlessly,
// never dropped wrongly.
func sniffType(line []byte) typeHint {
	hint := hintUnknown
	depth := 0
	for i := 0; i < len(line); {
		switch line[i] {
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
		case '"':
			lit, next := scanString(line, i)
			if depth == 1 && bytes.Equal(lit, typeToken) {
				if h, settled := readTypeValue(line, next); settled {
					if h == hintAssistant {
						return hintAssistant
					}
					hint = h
				}
				// Otherwise a string value "type", not a key. Keep walking.
			}
			i = next
		default:
			i++
		}
	}
	return hint
}

// readTypeValue inspects what follows a "type" literal ending at pos.
// settled is false when the literal turns out not to be a key, in which
// case the caller resumes scanning.
func readTypeValue(line []byte, pos int) (hint typeHint, settled bool) {
	i := skipBlanks(line, pos)
	if i >= len(line) || line[i] != ':' {
		return hintUnknown, false
	}
	i = skipBlanks(line, i+1)
	if i >= len(line) || line[i] != '"' {
		// The type key holds null, a number, an object... let the real
		// parser reject it.
		return hintUnknown, true
	}

	val, _ := scanString(line, i)
	switch {
	case bytes.Equal(val, []byte("assistant")):
		return hintAssistant, true
	case len(val) == 0 || len(val) > 24 || bytes.IndexByte(val, '\\') >= 0:
		// Empty, implausibly long, or escaped values are not trusted.
		return hintUnknown, true
	}
	return hintOther, true
}

// scanString reads the JSON string literal whose opening quote sits at
// i, returning its raw contents (escape sequences untouched) and the
// index just past the closing quote. An unterminated literal consumes
// the rest of the line.
func scanString(line []byte, i int) (lit []byte, next int) {
	start := i + 1
	for j := start; j < len(line); j++ {
		switch line[j] {
		case '\\':
			j++ // skip the escaped byte
		case '"':
			return line[start:j], j + 1
		}
	}
	return line[start:], len(line)
}

func skipBlanks(line []byte, i int) int {
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return i
}
