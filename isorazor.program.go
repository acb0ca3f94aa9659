package isorazor

import (
	"strings"

	"go.uber.org/zap"

	"github.com/itsatony/go-isorazor/internal"
)

// programBody executes an interpreted template program
type programBody struct {
	program *internal.Program
	funcs   *internal.FuncRegistry
	stop    func() bool
	logger  *zap.Logger
}

// Execute runs the program against t, writing to t's current writer
func (b *programBody) Execute(t Template) error {
	host := &templateHost{t: t}
	err := internal.NewInterpreter(b.program, b.funcs, host, b.logger).
		WithStop(b.stop).
		Execute(outputAdapter{w: t.Output()})
	if err != nil {
		return err
	}
	return host.err
}

// templateHost exposes a template's members to program code
type templateHost struct {
	t   Template
	err error
}

func (h *templateHost) Member(name string) (any, bool) {
	switch name {
	case internal.MemberModel:
		if typed, ok := h.t.(ModelTemplate); ok {
			return typed.Model(), true
		}
		return nil, false
	case internal.MemberViewBag:
		return h.t.ViewBag(), true
	case internal.MemberLayout:
		return h.t.Layout(), true
	case internal.MemberHtmlNewLine:
		return RawString(HTMLNewLine), true
	}
	return nil, false
}

func (h *templateHost) SetMember(path string, value any) error {
	if path == internal.MemberLayout {
		h.t.SetLayout(internal.FormatValue(value))
		return nil
	}
	if key, ok := strings.CutPrefix(path, internal.MemberViewBag+"."); ok && !strings.Contains(key, ".") {
		h.t.ViewBag().Set(key, value)
		return nil
	}
	return NewValidationError(ErrMsgInvalidMemberArgs, MetaKeyPath, path)
}

func (h *templateHost) CallMember(name string, args []any) (any, bool, error) {
	switch name {
	case internal.MemberRaw:
		if len(args) != 1 {
			return nil, true, memberArgsError(name)
		}
		return h.t.Raw(internal.FormatValue(args[0])), true, nil

	case internal.MemberInclude:
		if len(args) < 1 || len(args) > 2 {
			return nil, true, memberArgsError(name)
		}
		var model any
		if len(args) == 2 {
			model = args[1]
		}
		out, err := h.t.Include(internal.FormatValue(args[0]), model)
		return out, true, err

	case internal.MemberRenderBody:
		layout, ok := h.t.(LayoutTemplate)
		if !ok {
			return nil, true, NewValidationError(ErrMsgSectionOutside, MetaKeySection, name)
		}
		return layout.RenderBody(), true, nil

	case internal.MemberRenderSection:
		if len(args) < 1 || len(args) > 2 {
			return nil, true, memberArgsError(name)
		}
		layout, ok := h.t.(LayoutTemplate)
		if !ok {
			return nil, true, NewValidationError(ErrMsgSectionOutside, MetaKeySection, internal.FormatValue(args[0]))
		}
		required := true
		if len(args) == 2 {
			required = internal.IsTruthy(args[1])
		}
		out, err := layout.RenderSection(internal.FormatValue(args[0]), required)
		return out, true, err

	case internal.MemberIsSectionDefined:
		if len(args) != 1 {
			return nil, true, memberArgsError(name)
		}
		defined, err := h.t.IsSectionDefined(internal.FormatValue(args[0]))
		return defined, true, err

	case internal.MemberResolveUrl:
		if len(args) != 1 {
			return nil, true, memberArgsError(name)
		}
		return h.t.ResolveURL(internal.FormatValue(args[0])), true, nil
	}
	return nil, false, nil
}

func (h *templateHost) DefineSection(name string, render func(out internal.Output) error) {
	err := h.t.DefineSection(name, func(w *Writer) error {
		return render(outputAdapter{w: w})
	})
	if err != nil && h.err == nil {
		h.err = err
	}
}

func memberArgsError(name string) error {
	return NewValidationError(ErrMsgInvalidMemberArgs, MetaKeyKey, name)
}
