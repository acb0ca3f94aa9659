package isorazor

import (
	"strings"

	"github.com/itsatony/go-isorazor/internal"
)

// PositionTagged is a value together with its offset in the template source
type PositionTagged[T any] struct {
	Value    T
	Position int
}

// Tag creates a PositionTagged value
func Tag[T any](value T, position int) PositionTagged[T] {
	return PositionTagged[T]{Value: value, Position: position}
}

// AttributeValue is one segment of an attribute value. Literal segments are
// written unencoded.
type AttributeValue struct {
	Prefix  PositionTagged[string]
	Value   PositionTagged[any]
	Literal bool
}

// Writer accumulates the output of one render
type Writer struct {
	sb       strings.Builder
	encoding Encoding
}

// NewWriter creates a writer with the given encoding
func NewWriter(encoding Encoding) *Writer {
	return &Writer{encoding: encoding}
}

// Encoding returns the writer's encoding
func (w *Writer) Encoding() Encoding { return w.encoding }

// SetEncoding changes how subsequent values are encoded
func (w *Writer) SetEncoding(e Encoding) { w.encoding = e }

// WriteLiteral appends text unmodified
func (w *Writer) WriteLiteral(text string) {
	w.sb.WriteString(text)
}

// Write appends a value. Nil is ignored, pre-encoded values are written
// verbatim, anything else is formatted and then encoded.
func (w *Writer) Write(value any) {
	if value == nil {
		return
	}
	if enc, ok := value.(EncodedString); ok {
		w.sb.WriteString(enc.EncodedString())
		return
	}
	text := internal.FormatValue(value)
	if w.encoding == EncodingHTML {
		text = encodeHTML(text)
	}
	w.sb.WriteString(text)
}

// WriteAttribute writes a conditional attribute. With no values the prefix
// and suffix are written as an explicitly empty attribute. Otherwise false
// and nil values are skipped, true is written as the attribute name, and
// the attribute disappears entirely when every value was skipped.
func (w *Writer) WriteAttribute(name string, prefix, suffix PositionTagged[string], values ...AttributeValue) {
	if len(values) == 0 {
		w.WriteLiteral(prefix.Value)
		w.WriteLiteral(suffix.Value)
		return
	}

	written := false
	for _, v := range values {
		value := v.Value.Value
		if b, ok := value.(bool); ok {
			if !b {
				continue
			}
			value = name
		}
		if value == nil {
			continue
		}

		if written {
			w.WriteLiteral(v.Prefix.Value)
		} else {
			w.WriteLiteral(prefix.Value)
		}
		if v.Literal {
			w.WriteLiteral(internal.FormatValue(value))
		} else {
			w.Write(value)
		}
		written = true
	}

	if written {
		w.WriteLiteral(suffix.Value)
	}
}

// String returns everything written so far
func (w *Writer) String() string { return w.sb.String() }

// Len returns the number of bytes written
func (w *Writer) Len() int { return w.sb.Len() }

// Reset discards the buffer
func (w *Writer) Reset() { w.sb.Reset() }

// outputAdapter lets an interpreted program write through a Writer
type outputAdapter struct {
	w *Writer
}

func (o outputAdapter) WriteLiteral(text string) { o.w.WriteLiteral(text) }

func (o outputAdapter) Write(value any) { o.w.Write(value) }

func (o outputAdapter) WriteAttribute(attr *internal.Attribute, values []internal.AttrValue) {
	converted := make([]AttributeValue, len(values))
	for i, v := range values {
		converted[i] = AttributeValue{
			Prefix:  Tag(v.Prefix.Value, v.Prefix.Position),
			Value:   Tag(v.Value, v.Prefix.Position+len(v.Prefix.Value)),
			Literal: v.Literal,
		}
	}
	o.w.WriteAttribute(attr.Name,
		Tag(attr.Prefix.Value, attr.Prefix.Position),
		Tag(attr.Suffix.Value, attr.Suffix.Position),
		converted...)
}
