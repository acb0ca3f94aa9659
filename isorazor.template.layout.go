package isorazor

import (
	"strings"
)

// LayoutBase is a template that wraps a page. The page hands over its
// rendered body and its sections before the layout renders.
type LayoutBase struct {
	TemplateBase
	body string
}

// NewLayout creates a layout executing body
func NewLayout(body Body) *LayoutBase {
	l := &LayoutBase{}
	l.init(l, body)
	return l
}

// SetBody sets the page output returned by RenderBody
func (l *LayoutBase) SetBody(body string) { l.body = body }

// SetSections installs the page's sections
func (l *LayoutBase) SetSections(sections map[string]SectionAction) {
	if sections == nil {
		sections = make(map[string]SectionAction)
	}
	l.sections = sections
}

// RenderBody returns the page output
func (l *LayoutBase) RenderBody() EncodedString { return RawString(l.body) }

// RenderSection runs the named section into the layout's writer. A missing
// section is an error only when required.
func (l *LayoutBase) RenderSection(name string, required bool) (EncodedString, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError(ErrMsgEmptyName, MetaKeySection, name)
	}
	action, ok := l.sections[name]
	if !ok && required {
		return nil, NewMissingSectionError(name)
	}
	if action != nil {
		if err := action(l.out); err != nil {
			return nil, err
		}
	}
	return emptyMarker, nil
}

// Render executes the layout. A layout never delegates to another layout.
func (l *LayoutBase) Render() (string, error) {
	return l.renderOwn()
}
