package internal

import "unicode"

func isIdentStart(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch))
}

func isIdentChar(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}

func isAlnum(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isHorizontalSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r'
}

// scanString returns the index just past the string literal starting at i
func scanString(s string, i int) (int, bool) {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case CharBackslash:
			j++
		case quote:
			return j + 1, true
		}
	}
	return len(s), false
}

// scanBalanced returns the index just past the delimiter that closes the
// one at s[i]. String literals are skipped.
func scanBalanced(s string, i int, open, close byte) (int, bool) {
	depth := 0
	for j := i; j < len(s); j++ {
		switch ch := s[j]; ch {
		case CharDoubleQuote, CharSingleQuote:
			end, ok := scanString(s, j)
			if !ok {
				return len(s), false
			}
			j = end - 1
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return len(s), false
}

// scanIdent returns the index just past the identifier starting at i
func scanIdent(s string, i int) int {
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return i
}

// scanImplicit returns the end of an implicit expression starting at an
// identifier: a member path with optional call arguments, such as
// Model.Name or Include("x", Model). A trailing dot is not consumed.
func scanImplicit(s string, i int) (int, bool) {
	i = scanIdent(s, i)
	for i < len(s) {
		switch {
		case s[i] == CharOpenParen:
			end, ok := scanBalanced(s, i, CharOpenParen, CharCloseParen)
			if !ok {
				return end, false
			}
			i = end
		case s[i] == CharDot && i+1 < len(s) && isIdentStart(s[i+1]):
			i = scanIdent(s, i+1)
		default:
			return i, true
		}
	}
	return i, true
}

// splitTopLevel splits s on sep outside strings and brackets and returns
// each part with its starting offset
func splitTopLevel(s string, sep byte) ([]string, []int) {
	var parts []string
	var offsets []int
	depth, start := 0, 0
	for j := 0; j < len(s); j++ {
		switch ch := s[j]; ch {
		case CharDoubleQuote, CharSingleQuote:
			end, _ := scanString(s, j)
			j = end - 1
		case CharOpenParen, '[', CharOpenBrace:
			depth++
		case CharCloseParen, ']', CharCloseBrace:
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:j])
				offsets = append(offsets, start)
				start = j + 1
			}
		}
	}
	parts = append(parts, s[start:])
	offsets = append(offsets, start)
	return parts, offsets
}

// assignmentIndex returns the index of a top-level '=' that is not part of
// a comparison operator, or -1
func assignmentIndex(s string) int {
	depth := 0
	for j := 0; j < len(s); j++ {
		switch ch := s[j]; ch {
		case CharDoubleQuote, CharSingleQuote:
			end, _ := scanString(s, j)
			j = end - 1
		case CharOpenParen:
			depth++
		case CharCloseParen:
			depth--
		case CharEquals:
			if depth != 0 {
				continue
			}
			if j+1 < len(s) && s[j+1] == CharEquals {
				j++
				continue
			}
			if j > 0 && (s[j-1] == '!' || s[j-1] == '<' || s[j-1] == '>') {
				continue
			}
			return j
		}
	}
	return -1
}

// isMemberPath reports whether s is a dotted identifier path
func isMemberPath(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 0; i < len(s); {
		end := scanIdent(s, i)
		if end == i {
			return false
		}
		if end == len(s) {
			return true
		}
		if s[end] != CharDot {
			return false
		}
		i = end + 1
	}
	return false
}
