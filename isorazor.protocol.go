package isorazor

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/itsatony/go-cuserr"

	"github.com/itsatony/go-isorazor/internal"
)

// Worker protocol operations. Requests flow host to worker, one at a time
// per worker; resolve is a callback from worker to host answered with
// resolved before the worker continues.
const (
	opCompile  = "compile"
	opRender   = "render"
	opUnload   = "unload"
	opStarted  = "started"
	opResolve  = "resolve"
	opResolved = "resolved"
	opResult   = "result"
)

// Error kinds carried over the worker protocol
const (
	errKindTemplateNotFound = "template_not_found"
	errKindLayoutNotFound   = "layout_not_found"
	errKindModelMismatch    = "model_mismatch"
	errKindMissingSection   = "missing_section"
	errKindPermission       = "permission"
	errKindDuplicateKey     = "duplicate_key"
	errKindCompilation      = "compilation"
	errKindAborted          = "aborted"
	errKindOther            = "other"
)

// workerConfig is passed to a worker in its environment
type workerConfig struct {
	Namespace    string       `json:"namespace"`
	Capabilities Capabilities `json:"capabilities"`
	Debug        bool         `json:"debug"`
}

// renderPayload is a RenderRequest in wire form. The model travels as
// JSON together with the host's name for its type; the worker checks that
// name against the class's base type before decoding.
type renderPayload struct {
	Name      string          `json:"name"`
	Location  string          `json:"location"`
	TypeName  string          `json:"type_name"`
	Model     json.RawMessage `json:"model,omitempty"`
	ModelType string          `json:"model_type,omitempty"`
	ViewBag   *ViewBag        `json:"view_bag,omitempty"`
	Encoding  Encoding        `json:"encoding"`
	BaseURL   string          `json:"base_url,omitempty"`
}

// workerMessage is one line of the worker protocol
type workerMessage struct {
	ID       string          `json:"id"`
	Op       string          `json:"op"`
	Compile  *CompileRequest `json:"compile,omitempty"`
	Render   *renderPayload  `json:"render,omitempty"`
	Location string          `json:"location,omitempty"`
	Name     string          `json:"name,omitempty"`
	Resolved *Resolved       `json:"resolved,omitempty"`
	Output   string          `json:"output,omitempty"`
	Error    *wireError      `json:"error,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

// wireError is an error that crossed the process boundary
type wireError struct {
	Kind        string            `json:"kind"`
	Message     string            `json:"message"`
	Meta        map[string]string `json:"meta,omitempty"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}

var wireMetaKeys = []string{
	MetaKeyTemplateName, MetaKeyLayoutName, MetaKeySection,
	MetaKeyExpected, MetaKeyActual, MetaKeyKey, MetaKeyPath,
}

// toWireError classifies err for transport
func toWireError(err error) *wireError {
	if err == nil {
		return nil
	}
	w := &wireError{Kind: errKindOther, Message: err.Error()}

	var ce *CompilationError
	switch {
	case errors.As(err, &ce):
		w.Kind = errKindCompilation
		w.Diagnostics = ce.Diagnostics
		if ce.Name != "" {
			w.Meta = map[string]string{MetaKeyTemplateName: ce.Name}
		}
		return w
	case errors.Is(err, ErrTemplateNotFound):
		w.Kind = errKindTemplateNotFound
	case errors.Is(err, ErrLayoutNotFound):
		w.Kind = errKindLayoutNotFound
	case errors.Is(err, ErrModelMismatch):
		w.Kind = errKindModelMismatch
	case errors.Is(err, ErrMissingSection):
		w.Kind = errKindMissingSection
	case errors.Is(err, ErrPermission):
		w.Kind = errKindPermission
	case errors.Is(err, ErrDuplicateKey):
		w.Kind = errKindDuplicateKey
	case errors.Is(err, internal.ErrAborted):
		w.Kind = errKindAborted
	}

	var custom *cuserr.CustomError
	if errors.As(err, &custom) {
		for _, key := range wireMetaKeys {
			if v, ok := custom.GetMetadata(key); ok {
				if w.Meta == nil {
					w.Meta = make(map[string]string)
				}
				w.Meta[key] = v
			}
		}
	}
	return w
}

// fromWireError rebuilds a classified error on the host side
func fromWireError(w *wireError) error {
	if w == nil {
		return nil
	}
	meta := func(key string) string { return w.Meta[key] }

	switch w.Kind {
	case errKindCompilation:
		return &CompilationError{Name: meta(MetaKeyTemplateName), Diagnostics: w.Diagnostics, Cause: errors.New(w.Message)}
	case errKindTemplateNotFound:
		return NewTemplateNotFoundError(meta(MetaKeyTemplateName))
	case errKindLayoutNotFound:
		return NewLayoutNotFoundError(meta(MetaKeyLayoutName), nil)
	case errKindModelMismatch:
		return NewModelMismatchError(meta(MetaKeyExpected), meta(MetaKeyActual))
	case errKindMissingSection:
		return NewMissingSectionError(meta(MetaKeySection))
	case errKindPermission:
		return NewPermissionError(meta(MetaKeyPath))
	case errKindDuplicateKey:
		return NewDuplicateKeyError(meta(MetaKeyKey))
	case errKindAborted:
		return internal.ErrAborted
	}
	return NewBoundaryError(w.Message, nil)
}
