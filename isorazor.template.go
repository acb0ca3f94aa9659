package isorazor

import (
	"strings"
)

// SectionAction writes a section body into the writer of the layout that
// renders it.
type SectionAction func(w *Writer) error

// Body is the executable part of a template
type Body interface {
	Execute(t Template) error
}

// BodyFunc adapts a function to Body
type BodyFunc func(t Template) error

// Execute calls f
func (f BodyFunc) Execute(t Template) error { return f(t) }

// TemplateResolver loads another template by name for layouts and includes.
// A nil Template with a nil error means the name is unknown.
type TemplateResolver interface {
	Resolve(name string) (Template, error)
}

// TemplateResolverFunc adapts a function to TemplateResolver
type TemplateResolverFunc func(name string) (Template, error)

// Resolve calls f
func (f TemplateResolverFunc) Resolve(name string) (Template, error) { return f(name) }

// Template is the runtime contract every template instance implements
type Template interface {
	Encoding() Encoding
	SetEncoding(e Encoding)
	Layout() string
	SetLayout(name string)
	ViewBag() *ViewBag
	SetViewBag(bag *ViewBag)
	TemplateResolver() TemplateResolver
	SetTemplateResolver(r TemplateResolver)
	BaseURL() string
	SetBaseURL(url string)
	DefineSection(name string, action SectionAction) error
	IsSectionDefined(name string) (bool, error)
	Include(name string, model any) (EncodedString, error)
	Raw(text string) EncodedString
	ResolveURL(path string) string
	Execute() error
	Render() (string, error)
	Output() *Writer
}

// ModelTemplate is a template with a declared model type
type ModelTemplate interface {
	Template
	Model() any
	SetModel(model any) error
	ModelType() string
}

// LayoutTemplate is a template that wraps the output of another
type LayoutTemplate interface {
	Template
	SetBody(body string)
	SetSections(sections map[string]SectionAction)
	RenderBody() EncodedString
	RenderSection(name string, required bool) (EncodedString, error)
}

// TemplateBase is the untyped template. Typed templates and layouts embed
// it; self points at the outermost value so that Render dispatches to the
// embedding type.
type TemplateBase struct {
	self     Template
	body     Body
	out      *Writer
	encoding Encoding
	layout   string
	viewBag  *ViewBag
	resolver TemplateResolver
	sections map[string]SectionAction
	baseURL  string
}

// NewTemplate creates an untyped template executing body
func NewTemplate(body Body) *TemplateBase {
	t := &TemplateBase{}
	t.init(t, body)
	return t
}

func (t *TemplateBase) init(self Template, body Body) {
	t.self = self
	t.body = body
	t.encoding = EncodingHTML
	t.out = NewWriter(EncodingHTML)
	t.viewBag = NewViewBag()
	t.sections = make(map[string]SectionAction)
}

// Encoding returns the output encoding
func (t *TemplateBase) Encoding() Encoding { return t.encoding }

// SetEncoding sets the output encoding
func (t *TemplateBase) SetEncoding(e Encoding) {
	t.encoding = e
	t.out.SetEncoding(e)
}

// Layout returns the layout name, empty when there is none
func (t *TemplateBase) Layout() string { return t.layout }

// SetLayout sets the layout the output is wrapped in
func (t *TemplateBase) SetLayout(name string) { t.layout = name }

// ViewBag returns the shared property bag
func (t *TemplateBase) ViewBag() *ViewBag { return t.viewBag }

// SetViewBag replaces the property bag. Nil installs an empty bag.
func (t *TemplateBase) SetViewBag(bag *ViewBag) {
	if bag == nil {
		bag = NewViewBag()
	}
	t.viewBag = bag
}

// TemplateResolver returns the resolver used for layouts and includes
func (t *TemplateBase) TemplateResolver() TemplateResolver { return t.resolver }

// SetTemplateResolver installs the resolver
func (t *TemplateBase) SetTemplateResolver(r TemplateResolver) { t.resolver = r }

// BaseURL returns the base URL used by ResolveURL
func (t *TemplateBase) BaseURL() string { return t.baseURL }

// SetBaseURL sets the base URL used by ResolveURL
func (t *TemplateBase) SetBaseURL(url string) { t.baseURL = url }

// Output returns the writer of the current render
func (t *TemplateBase) Output() *Writer { return t.out }

// DefineSection registers a section for the layout to render
func (t *TemplateBase) DefineSection(name string, action SectionAction) error {
	if _, exists := t.sections[name]; exists {
		return NewValidationError(ErrMsgSectionDefined, MetaKeySection, name)
	}
	t.sections[name] = action
	return nil
}

// IsSectionDefined reports whether a section with a non-nil action exists
func (t *TemplateBase) IsSectionDefined(name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, NewValidationError(ErrMsgEmptyName, MetaKeySection, name)
	}
	return t.sections[name] != nil, nil
}

// Raw marks text as already encoded
func (t *TemplateBase) Raw(text string) EncodedString { return RawString(text) }

// ResolveURL replaces the base URL marker in path
func (t *TemplateBase) ResolveURL(path string) string {
	return strings.ReplaceAll(path, BaseURLMarker, t.baseURL)
}

// Write writes a value with the template's encoding
func (t *TemplateBase) Write(value any) { t.out.Write(value) }

// WriteLiteral writes text unencoded
func (t *TemplateBase) WriteLiteral(text string) { t.out.WriteLiteral(text) }

// WriteAttribute writes a conditional attribute
func (t *TemplateBase) WriteAttribute(name string, prefix, suffix PositionTagged[string], values ...AttributeValue) {
	t.out.WriteAttribute(name, prefix, suffix, values...)
}

// Execute runs the template body
func (t *TemplateBase) Execute() error {
	if t.body == nil {
		return NewValidationError(ErrMsgNoBody, "", "")
	}
	return t.body.Execute(t.self)
}

// Render executes the template and, when a layout is set, returns the
// layout's rendering of the output. Layouts are resolved one level deep.
func (t *TemplateBase) Render() (string, error) {
	body, err := t.renderOwn()
	if err != nil {
		return "", err
	}
	if t.layout == "" {
		return body, nil
	}

	layout, err := t.resolveLayout()
	if err != nil {
		return "", err
	}
	layout.SetSections(t.sections)
	layout.SetBody(body)
	return layout.Render()
}

// renderOwn resets the writer and runs the body
func (t *TemplateBase) renderOwn() (string, error) {
	t.out = NewWriter(t.encoding)
	if err := t.self.Execute(); err != nil {
		return "", err
	}
	return t.out.String(), nil
}

func (t *TemplateBase) resolveLayout() (LayoutTemplate, error) {
	if t.resolver == nil {
		return nil, NewLayoutNotFoundError(t.layout, nil)
	}
	resolved, err := t.resolver.Resolve(t.layout)
	if err != nil {
		return nil, NewLayoutNotFoundError(t.layout, err)
	}
	layout, ok := resolved.(LayoutTemplate)
	if !ok {
		return nil, NewLayoutNotFoundError(t.layout, nil)
	}
	return layout, nil
}

// Include renders another template and returns its output as encoded
// text. A nil model renders the template as it is; otherwise the template
// must declare a model type the value is assignable to.
func (t *TemplateBase) Include(name string, model any) (EncodedString, error) {
	if t.resolver == nil {
		return nil, NewTemplateNotFoundError(name)
	}
	inc, err := t.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, NewTemplateNotFoundError(name)
	}

	if model != nil {
		typed, ok := inc.(ModelTemplate)
		if !ok {
			return nil, NewModelMismatchError(ModelTypeNone, modelTypeName(model))
		}
		if err := typed.SetModel(model); err != nil {
			return nil, err
		}
	}

	out, err := inc.Render()
	if err != nil {
		return nil, err
	}
	return RawString(out), nil
}
