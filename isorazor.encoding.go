package isorazor

import (
	"html"
	"strings"
)

// Encoding selects how Write treats values that are not pre-encoded
type Encoding int

const (
	// EncodingHTML escapes values before writing them
	EncodingHTML Encoding = iota
	// EncodingRaw writes values verbatim
	EncodingRaw
)

// Encoding names
const (
	EncodingNameHTML = "html"
	EncodingNameRaw  = "raw"
)

// String returns the encoding name
func (e Encoding) String() string {
	if e == EncodingRaw {
		return EncodingNameRaw
	}
	return EncodingNameHTML
}

// ParseEncoding maps a name to an Encoding. The empty string is HTML.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingNameHTML:
		return EncodingHTML, nil
	case EncodingNameRaw:
		return EncodingRaw, nil
	}
	return EncodingHTML, NewValidationError(ErrMsgInvalidEncoding, MetaKeyKey, name)
}

// EncodedString is implemented by values that are already encoded for the
// output and must be written verbatim.
type EncodedString interface {
	EncodedString() string
}

// RawString is text that bypasses HTML encoding
type RawString string

// EncodedString returns the text unchanged
func (r RawString) EncodedString() string { return string(r) }

// String implements fmt.Stringer
func (r RawString) String() string { return string(r) }

// emptyMarker is returned by calls whose output was written as a side effect
const emptyMarker = RawString("")

// encodeHTML escapes < > & ' and "
func encodeHTML(s string) string {
	return html.EscapeString(s)
}
