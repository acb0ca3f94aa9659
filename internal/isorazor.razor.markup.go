package internal

import "strings"

// attrSpan marks one attribute inside a start tag
type attrSpan struct {
	lead       int // start of whitespace before the name
	name       string
	valueStart int // first byte after the opening quote
	valueEnd   int // index of the closing quote
	quote      byte
}

// isTransitionAt reports whether s[i] is an '@' that starts code. An '@'
// inside a word, as in an email address, is literal.
func isTransitionAt(s string, i int) bool {
	if s[i] != CharAt || i+1 >= len(s) {
		return false
	}
	if i > 0 && isAlnum(s[i-1]) {
		return false
	}
	next := s[i+1]
	return next == CharOpenParen || isIdentStart(next)
}

func isTagNameChar(ch byte) bool {
	return isIdentChar(ch) || ch == '-' || ch == ':'
}

func isAttrNameChar(ch byte) bool {
	return !isSpace(ch) && ch != CharEquals && ch != CharCloseAngle && ch != CharSlash &&
		ch != CharDoubleQuote && ch != CharSingleQuote && ch != CharAt
}

// hasTransition reports whether s[start:end] contains code
func hasTransition(s string, start, end int) bool {
	region := s[:end]
	for i := start; i < end; i++ {
		if region[i] == CharAt && i+1 < end && region[i+1] == CharAt {
			i++
			continue
		}
		if isTransitionAt(region, i) {
			return true
		}
	}
	return false
}

// scanDynamicTag recognises a start tag with quoted attribute values that
// contain code and splits it into text and attribute nodes. ok is false
// when the tag has no such attribute or uses code outside of quotes; the
// caller then treats the tag as plain text.
func (p *RazorParser) scanDynamicTag() ([]*Node, bool) {
	s := p.src
	i := p.pos + 1
	for i < len(s) && isTagNameChar(s[i]) {
		i++
	}

	var spans []attrSpan
	for {
		lead := i
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] == CharAt {
			return nil, false
		}
		if s[i] == CharCloseAngle || (s[i] == CharSlash && i+1 < len(s) && s[i+1] == CharCloseAngle) {
			break
		}

		nameStart := i
		for i < len(s) && isAttrNameChar(s[i]) {
			i++
		}
		if i == nameStart {
			return nil, false
		}
		name := s[nameStart:i]

		j := i
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j >= len(s) || s[j] != CharEquals {
			continue
		}
		j++
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j >= len(s) {
			return nil, false
		}

		if q := s[j]; q == CharDoubleQuote || q == CharSingleQuote {
			end := strings.IndexByte(s[j+1:], q)
			if end < 0 {
				return nil, false
			}
			span := attrSpan{lead: lead, name: name, valueStart: j + 1, valueEnd: j + 1 + end, quote: q}
			if hasTransition(s, span.valueStart, span.valueEnd) {
				spans = append(spans, span)
			}
			i = span.valueEnd + 1
			continue
		}

		// unquoted value
		for j < len(s) && !isSpace(s[j]) && s[j] != CharCloseAngle {
			if s[j] == CharAt {
				return nil, false
			}
			j++
		}
		i = j
	}

	if len(spans) == 0 {
		return nil, false
	}
	tagEnd := strings.IndexByte(s[i:], CharCloseAngle) + i + 1

	var nodes []*Node
	cursor := p.pos
	for _, span := range spans {
		if span.lead > cursor {
			nodes = append(nodes, &Node{Kind: NodeKindText, Text: s[cursor:span.lead], Pos: p.positionAt(cursor)})
		}
		segments, ok := attributeSegments(s, span.valueStart, span.valueEnd)
		if !ok {
			return nil, false
		}
		nodes = append(nodes, &Node{
			Kind: NodeKindAttribute,
			Attr: &Attribute{
				Name:     span.name,
				Prefix:   Tagged{Value: s[span.lead:span.valueStart], Position: span.lead},
				Suffix:   Tagged{Value: string(span.quote), Position: span.valueEnd},
				Segments: segments,
			},
			Pos: p.positionAt(span.lead),
		})
		cursor = span.valueEnd + 1
	}
	nodes = append(nodes, &Node{Kind: NodeKindText, Text: s[cursor:tagEnd], Pos: p.positionAt(cursor)})

	p.advanceN(tagEnd - p.pos)
	return nodes, true
}

// attributeSegments splits an attribute value on whitespace. Each word
// becomes one or more segments; the whitespace before a word is the prefix
// of its first segment.
func attributeSegments(s string, start, end int) ([]AttrSegment, bool) {
	region := s[:end]
	var segments []AttrSegment

	i := start
	for i < end {
		wsStart := i
		for i < end && isSpace(region[i]) {
			i++
		}
		prefix := Tagged{Value: region[wsStart:i], Position: wsStart}

		var lit strings.Builder
		litStart := i
		emitted := false
		flush := func() {
			if lit.Len() == 0 && (emitted || prefix.Value == "") {
				return
			}
			seg := AttrSegment{Text: lit.String(), Literal: true, Position: litStart}
			if !emitted {
				seg.Prefix = prefix
			} else {
				seg.Prefix = Tagged{Position: litStart}
			}
			segments = append(segments, seg)
			emitted = true
			lit.Reset()
		}

		for i < end && !isSpace(region[i]) {
			if region[i] == CharAt && i+1 < end && region[i+1] == CharAt {
				lit.WriteByte(CharAt)
				i += 2
				continue
			}
			if !isTransitionAt(region, i) {
				if lit.Len() == 0 {
					litStart = i
				}
				lit.WriteByte(region[i])
				i++
				continue
			}

			if lit.Len() > 0 {
				flush()
			}
			var expr string
			var next int
			if region[i+1] == CharOpenParen {
				e, ok := scanBalanced(region, i+1, CharOpenParen, CharCloseParen)
				if !ok {
					return nil, false
				}
				expr, next = strings.TrimSpace(region[i+2:e-1]), e
			} else {
				e, ok := scanImplicit(region, i+1)
				if !ok {
					return nil, false
				}
				expr, next = region[i+1:e], e
			}

			seg := AttrSegment{Expr: expr, Position: i}
			if !emitted {
				seg.Prefix = prefix
			} else {
				seg.Prefix = Tagged{Position: i}
			}
			segments = append(segments, seg)
			emitted = true
			i = next
		}
		flush()
	}
	return segments, true
}
