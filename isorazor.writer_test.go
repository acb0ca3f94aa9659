package isorazor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Write(t *testing.T) {
	tests := []struct {
		name     string
		encoding Encoding
		value    any
		expected string
	}{
		{"html escapes", EncodingHTML, `<a href="x">&</a>`, "&lt;a href=&#34;x&#34;&gt;&amp;&lt;/a&gt;"},
		{"raw keeps", EncodingRaw, "<a>", "<a>"},
		{"encoded string", EncodingHTML, RawString("<br/>"), "<br/>"},
		{"nil ignored", EncodingHTML, nil, ""},
		{"number", EncodingHTML, 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(tt.encoding)
			w.Write(tt.value)
			assert.Equal(t, tt.expected, w.String())
		})
	}
}

func TestWriter_WriteAttribute(t *testing.T) {
	prefix := Tag(` class="`, 0)
	suffix := Tag(`"`, 20)
	val := func(prefix string, v any, literal bool) AttributeValue {
		return AttributeValue{Prefix: Tag(prefix, 0), Value: Tag(v, 0), Literal: literal}
	}

	tests := []struct {
		name     string
		values   []AttributeValue
		expected string
	}{
		{"no values", nil, ` class=""`},
		{"single", []AttributeValue{val("", "a", false)}, ` class="a"`},
		{"true writes name", []AttributeValue{val("", true, false)}, ` class="class"`},
		{"false drops attribute", []AttributeValue{val("", false, false)}, ``},
		{"nil drops attribute", []AttributeValue{val("", nil, false)}, ``},
		{"skip first keeps rest", []AttributeValue{val("", nil, false), val(" ", "b", false)}, ` class="b"`},
		{"joined", []AttributeValue{val("", "a", true), val(" ", "<b>", false)}, ` class="a &lt;b&gt;"`},
		{"literal unencoded", []AttributeValue{val("", "<b>", true)}, ` class="<b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(EncodingHTML)
			w.WriteAttribute("class", prefix, suffix, tt.values...)
			assert.Equal(t, tt.expected, w.String())
		})
	}
}

func TestParseEncoding(t *testing.T) {
	e, err := ParseEncoding("RAW")
	assert.NoError(t, err)
	assert.Equal(t, EncodingRaw, e)

	e, err = ParseEncoding("")
	assert.NoError(t, err)
	assert.Equal(t, EncodingHTML, e)

	_, err = ParseEncoding("xml")
	assert.Error(t, err)
	assert.Equal(t, EncodingNameRaw, EncodingRaw.String())
}
