package isorazor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/itsatony/go-isorazor/internal"
)

// Boundary hosts compiled template code away from the caller. Compile and
// Render block until the work finished or ctx is done; a cancelled render
// is killed and its partial output discarded.
type Boundary interface {
	Compile(ctx context.Context, req *CompileRequest) (string, error)
	Render(ctx context.Context, req *RenderRequest) (string, error)
	EvictArtifact(ctx context.Context, location string) error
	Close() error
}

// UnitSource is one template class to compile
type UnitSource struct {
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Text      string `json:"text"`
}

// CompileRequest asks a boundary to compile one artifact
type CompileRequest struct {
	Name       string       `json:"name"`
	Units      []UnitSource `json:"units"`
	BaseType   string       `json:"base_type"`
	Imports    []string     `json:"imports"`
	OutputPath string       `json:"output_path"`
}

// Resolved locates a compiled template class
type Resolved struct {
	Location string `json:"location"`
	TypeName string `json:"type_name"`
}

// ResolveFunc locates a template by name for layouts and includes. A nil
// result with a nil error means the name is unknown.
type ResolveFunc func(name string) (*Resolved, error)

// RenderRequest asks a boundary to render one template class
type RenderRequest struct {
	Name     string
	Location string
	TypeName string
	Model    any
	ViewBag  *ViewBag
	Encoding Encoding
	BaseURL  string
	Resolver ResolveFunc
	// Started is called when template code begins to run
	Started func()
}

// compileUnits parses every unit and compiles them into one artifact.
// Diagnostics from all units are reported together.
func compileUnits(ctx context.Context, parser Parser, compiler Compiler, req *CompileRequest) (string, error) {
	units := make([]*CompilableUnit, 0, len(req.Units))
	var diags []Diagnostic
	for _, src := range req.Units {
		unit, err := parser.Parse(ctx, ParseRequest{
			Name:      src.Name,
			Text:      src.Text,
			ClassName: src.ClassName,
			Imports:   req.Imports,
			BaseType:  req.BaseType,
		})
		if err != nil {
			var ce *CompilationError
			if errors.As(err, &ce) && len(ce.Diagnostics) > 0 {
				diags = append(diags, ce.Diagnostics...)
				continue
			}
			return "", NewCompilationError(src.Name, err)
		}
		units = append(units, unit)
	}
	if len(diags) > 0 {
		return "", &CompilationError{Name: req.Name, Diagnostics: diags}
	}

	location, err := compiler.Compile(ctx, units, BuildReferences(), req.OutputPath)
	if err != nil {
		return "", NewCompilationError(req.Name, err)
	}
	return location, nil
}

// renderJob renders one request inside a boundary worker
type renderJob struct {
	req    *RenderRequest
	caps   Capabilities
	stop   func() bool
	logger *zap.Logger
	bag    *ViewBag
	onLoad func(location string)
}

func newRenderJob(req *RenderRequest, caps Capabilities, stop func() bool, logger *zap.Logger) *renderJob {
	// The job works on its own copy, so template writes never reach the
	// caller's bag and both isolation modes behave alike.
	bag := ViewBagFrom(req.ViewBag)
	return &renderJob{req: req, caps: caps, stop: stop, logger: logger, bag: bag}
}

// instantiate loads a class and configures it like the root template
func (j *renderJob) instantiate(location, typeName string) (Template, *loadedClass, error) {
	art, err := loadArtifact(location)
	if err != nil {
		return nil, nil, err
	}
	if j.onLoad != nil {
		j.onLoad(location)
	}
	class, err := art.class(typeName)
	if err != nil {
		return nil, nil, err
	}

	tpl := class.instantiate(j.caps, j.stop, j.logger)
	tpl.SetEncoding(j.req.Encoding)
	tpl.SetViewBag(j.bag)
	tpl.SetBaseURL(j.req.BaseURL)
	tpl.SetTemplateResolver(TemplateResolverFunc(j.resolve))
	return tpl, class, nil
}

// resolve is the TemplateResolver of every template in the job
func (j *renderJob) resolve(name string) (Template, error) {
	if j.req.Resolver == nil {
		return nil, nil
	}
	resolved, err := j.req.Resolver(name)
	if err != nil || resolved == nil {
		return nil, err
	}
	tpl, _, err := j.instantiate(resolved.Location, resolved.TypeName)
	return tpl, err
}

// run renders the root template. model overrides req.Model when the model
// had to be decoded against the class's base type.
func (j *renderJob) run(decode func(baseType string) (any, error)) (string, error) {
	tpl, class, err := j.instantiate(j.req.Location, j.req.TypeName)
	if err != nil {
		return "", err
	}

	model := j.req.Model
	if decode != nil {
		if model, err = decode(class.baseType); err != nil {
			return "", err
		}
	}
	if model != nil {
		typed, ok := tpl.(ModelTemplate)
		if !ok {
			return "", NewModelMismatchError(ModelTypeNone, modelTypeName(model))
		}
		if err := typed.SetModel(model); err != nil {
			return "", err
		}
	}

	if j.req.Started != nil {
		j.req.Started()
	}
	return tpl.Render()
}

// recoverRender turns a panic in template code into an error
func recoverRender(name string, errp *error) {
	if r := recover(); r != nil {
		*errp = NewRenderError(name, fmt.Errorf("panic: %v", r))
	}
}

// isAborted reports whether err came from a killed render
func isAborted(err error) bool {
	return errors.Is(err, internal.ErrAborted)
}
