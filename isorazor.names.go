package isorazor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ClassName turns a template name into an identifier. Diacritics are
// folded away, other characters outside [A-Za-z0-9] become underscores, and
// names that do not start with a letter are prefixed with "C".
func ClassName(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	sb.Grow(len(folded) + 1)
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}

	out := sb.String()
	if out == "" || !unicode.IsLetter(rune(out[0])) {
		out = ClassNamePrefix + out
	}
	return out
}

// GroupClassName names the class of one member of a template group
func GroupClassName(group, member string) string {
	return ClassName(group + GroupMemberSeparator + member)
}

// QualifiedTypeName joins the namespace and a class name
func QualifiedTypeName(namespace, className string) string {
	if namespace == "" {
		return className
	}
	return namespace + QualifiedNameSep + className
}
