package plan

import "strings"

// Bracket-depth scanners for LLM output repair. A regex is insufficient
// because models routinely append garbage after the JSON; the scanners track
// string literals and escapes so braces inside values do not miscount.

func firstBalancedObject(s string) string {
	return firstBalanced(s, '{', '}')
}

func firstBalancedArray(s string) string {
	return firstBalanced(s, '[', ']')
}

func firstBalanced(s string, opener, closer byte) string {
	start := strings.IndexByte(s, opener)
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == opener:
			depth++
		case ch == closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
