package isorazor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/itsatony/go-cuserr"

	"github.com/itsatony/go-isorazor/internal"
)

// Error message constants
const (
	ErrMsgTemplateNotFound  = "template not found"
	ErrMsgLayoutNotFound    = "layout not found"
	ErrMsgModelMismatch     = "model type does not match the template"
	ErrMsgMissingSection    = "required section is not defined"
	ErrMsgSectionDefined    = "section is already defined"
	ErrMsgSectionOutside    = "sections can only be rendered from a layout"
	ErrMsgTimeout           = "template rendering exceeded the deadline"
	ErrMsgDisposed          = "templater has been closed"
	ErrMsgDuplicateKey      = "key already exists in view bag"
	ErrMsgPermission        = "access outside the allowed directories"
	ErrMsgCompilation       = "template compilation failed"
	ErrMsgEmptyName         = "template name cannot be empty"
	ErrMsgEmptyGroup        = "template group has no members"
	ErrMsgUnknownBaseType   = "unknown base type"
	ErrMsgUnknownModel      = "unknown model type"
	ErrMsgModelRegistered   = "model name already registered"
	ErrMsgBadArtifact       = "invalid artifact"
	ErrMsgArtifactFormat    = "unsupported artifact format"
	ErrMsgNoBody            = "template has no body"
	ErrMsgResolverMissing   = "no template resolver configured"
	ErrMsgIncludeFailed     = "include failed"
	ErrMsgRenderFailed      = "template rendering failed"
	ErrMsgNilItem           = "list item is nil"
	ErrMsgMissingKey        = "list item has no key field"
	ErrMsgKeyNotString      = "list item key is not a string"
	ErrMsgInvalidIsolation  = "unknown isolation mode"
	ErrMsgInvalidEncoding   = "unknown encoding"
	ErrMsgWorkerFailed      = "worker process failed"
	ErrMsgWorkerProtocol    = "worker protocol violation"
	ErrMsgNotInWorker       = "process is not a worker"
	ErrMsgConfigRead        = "failed to read config"
	ErrMsgConfigParse       = "failed to parse config"
	ErrMsgCachePersist      = "failed to persist artifact cache"
	ErrMsgCacheRestore      = "failed to restore artifact cache"
	ErrMsgNoStorage         = "no template storage configured"
	ErrMsgInvalidMemberArgs = "invalid arguments for template member"
)

// Storage error messages
const (
	ErrMsgStorageNotFound        = "template not found in storage"
	ErrMsgStorageVersionNotFound = "template version not found"
	ErrMsgStorageClosed          = "storage is closed"
	ErrMsgStorageInvalidName     = "invalid template name"
	ErrMsgStorageDriverNotFound  = "storage driver not found"
	ErrMsgStorageDriverExists    = "storage driver already registered"
	ErrMsgStorageReadFailed      = "failed to read from storage"
	ErrMsgStorageWriteFailed     = "failed to write to storage"
	ErrMsgStorageDeleteFailed    = "failed to delete from storage"
	ErrMsgStorageMigration       = "storage migration failed"
	ErrMsgStorageConnection      = "failed to connect to storage"
	ErrMsgStorageNilTemplate     = "template cannot be nil"
	ErrMsgPostgresEmptyConnStr   = "postgres connection string is empty"
)

// Error code constants for categorization
const (
	ErrCodeTemplate    = "ISORAZOR_TEMPLATE"
	ErrCodeCompile     = "ISORAZOR_COMPILE"
	ErrCodeRender      = "ISORAZOR_RENDER"
	ErrCodeTimeout     = "ISORAZOR_TIMEOUT"
	ErrCodeDisposed    = "ISORAZOR_DISPOSED"
	ErrCodeValidation  = "ISORAZOR_VALIDATION"
	ErrCodePermission  = "ISORAZOR_PERMISSION"
	ErrCodeBoundary    = "ISORAZOR_BOUNDARY"
	ErrCodeConfig      = "ISORAZOR_CONFIG"
	ErrCodeStorage     = "ISORAZOR_STORAGE"
	ErrCodePersistence = "ISORAZOR_PERSISTENCE"
)

// Sentinel errors. Every classified error wraps one of these, so callers
// can branch with errors.Is.
var (
	ErrTemplateNotFound = errors.New(ErrMsgTemplateNotFound)
	ErrLayoutNotFound   = errors.New(ErrMsgLayoutNotFound)
	ErrModelMismatch    = errors.New(ErrMsgModelMismatch)
	ErrMissingSection   = errors.New(ErrMsgMissingSection)
	ErrTimeout          = errors.New(ErrMsgTimeout)
	ErrDisposed         = errors.New(ErrMsgDisposed)
	ErrDuplicateKey     = errors.New(ErrMsgDuplicateKey)
	ErrPermission       = errors.New(ErrMsgPermission)
	ErrCompilation      = errors.New(ErrMsgCompilation)
)

// NewTemplateNotFoundError reports a name with no cache entry and no source
func NewTemplateNotFoundError(name string) error {
	return cuserr.WrapStdError(ErrTemplateNotFound, ErrCodeTemplate, ErrMsgTemplateNotFound).
		WithMetadata(MetaKeyTemplateName, name)
}

// NewLayoutNotFoundError reports a layout name the resolver cannot load
func NewLayoutNotFoundError(layout string, cause error) error {
	err := cuserr.WrapStdError(ErrLayoutNotFound, ErrCodeTemplate, ErrMsgLayoutNotFound).
		WithMetadata(MetaKeyLayoutName, layout)
	if cause != nil {
		err = err.WithMetadata(MetaKeyLocation, cause.Error())
	}
	return err
}

// NewModelMismatchError names the expected and actual model types
func NewModelMismatchError(expected, actual string) error {
	return cuserr.WrapStdError(ErrModelMismatch, ErrCodeRender, ErrMsgModelMismatch).
		WithMetadata(MetaKeyExpected, expected).
		WithMetadata(MetaKeyActual, actual)
}

// NewMissingSectionError reports a required section the page did not define
func NewMissingSectionError(section string) error {
	return cuserr.WrapStdError(ErrMissingSection, ErrCodeRender, ErrMsgMissingSection).
		WithMetadata(MetaKeySection, section)
}

// NewTimeoutError reports a render killed at its deadline
func NewTimeoutError(name string, timeout fmt.Stringer) error {
	return cuserr.WrapStdError(ErrTimeout, ErrCodeTimeout, ErrMsgTimeout).
		WithMetadata(MetaKeyTemplateName, name).
		WithMetadata(MetaKeyTimeout, timeout.String())
}

// NewDisposedError reports use of a closed templater
func NewDisposedError() error {
	return cuserr.WrapStdError(ErrDisposed, ErrCodeDisposed, ErrMsgDisposed)
}

// NewDuplicateKeyError reports an Add of an existing view bag key
func NewDuplicateKeyError(key string) error {
	return cuserr.WrapStdError(ErrDuplicateKey, ErrCodeValidation, ErrMsgDuplicateKey).
		WithMetadata(MetaKeyKey, key)
}

// NewPermissionError reports a file access outside the capabilities
func NewPermissionError(path string) error {
	return cuserr.WrapStdError(ErrPermission, ErrCodePermission, ErrMsgPermission).
		WithMetadata(MetaKeyPath, path)
}

// NewValidationError creates a classified input error
func NewValidationError(msg string, key, value string) error {
	err := cuserr.NewValidationError(ErrCodeValidation, msg)
	if key != "" {
		err = err.WithMetadata(key, value)
	}
	return err
}

// NewRenderError wraps a failure raised while template code ran
func NewRenderError(name string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeRender, ErrMsgRenderFailed).
		WithMetadata(MetaKeyTemplateName, name)
}

// NewBoundaryError wraps an isolation boundary failure
func NewBoundaryError(msg string, cause error) error {
	if cause == nil {
		return cuserr.WrapStdError(errors.New(msg), ErrCodeBoundary, msg)
	}
	return cuserr.WrapStdError(cause, ErrCodeBoundary, msg)
}

// NewConfigError wraps a configuration failure
func NewConfigError(msg, path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeConfig, msg).
		WithMetadata(MetaKeyPath, path)
}

// Diagnostic is a single compiler message with its source position
type Diagnostic struct {
	Template string `json:"template,omitempty"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// String returns a human-readable diagnostic
func (d Diagnostic) String() string {
	if d.Template != "" {
		return fmt.Sprintf("%s(%d,%d): %s", d.Template, d.Line, d.Column, d.Message)
	}
	return fmt.Sprintf("(%d,%d): %s", d.Line, d.Column, d.Message)
}

// CompilationError carries every diagnostic of a failed compile
type CompilationError struct {
	Name        string
	Diagnostics []Diagnostic
	Cause       error
}

// Error implements the error interface
func (e *CompilationError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrMsgCompilation)
	if e.Name != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Name)
		sb.WriteString("]")
	}
	for _, d := range e.Diagnostics {
		sb.WriteString("\n  ")
		sb.WriteString(d.String())
	}
	if e.Cause != nil && len(e.Diagnostics) == 0 {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the cause when there is one, else ErrCompilation
func (e *CompilationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrCompilation, e.Cause}
	}
	return []error{ErrCompilation}
}

// NewCompilationError builds a CompilationError from an internal failure.
// Parser and linker diagnostics are carried over with their positions.
func NewCompilationError(name string, cause error) *CompilationError {
	var ce *CompilationError
	if errors.As(cause, &ce) {
		if ce.Name == "" {
			ce.Name = name
		}
		return ce
	}
	var diags *internal.DiagnosticsError
	if errors.As(cause, &diags) {
		return &CompilationError{Name: name, Diagnostics: convertDiagnostics(name, diags.Diagnostics)}
	}
	return &CompilationError{Name: name, Cause: cause}
}

func convertDiagnostics(name string, in []internal.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(in))
	for _, d := range in {
		out = append(out, Diagnostic{
			Template: name,
			Message:  d.Message,
			Line:     d.Position.Line,
			Column:   d.Position.Column,
		})
	}
	return out
}

// StorageError represents a template storage failure
type StorageError struct {
	Message string
	Name    string
	Version int
	Cause   error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	msg := e.Message
	if e.Name != "" {
		msg = fmt.Sprintf("%s [name=%s]", msg, e.Name)
	}
	if e.Version > 0 {
		msg = fmt.Sprintf("%s [version=%d]", msg, e.Version)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a storage error
func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{Message: message, Cause: cause}
}

// NewStorageTemplateNotFoundError reports a missing stored template
func NewStorageTemplateNotFoundError(name string) *StorageError {
	return &StorageError{Message: ErrMsgStorageNotFound, Name: name, Cause: ErrTemplateNotFound}
}

// NewStorageVersionNotFoundError reports a missing stored version
func NewStorageVersionNotFoundError(name string, version int) *StorageError {
	return &StorageError{Message: ErrMsgStorageVersionNotFound, Name: name, Version: version, Cause: ErrTemplateNotFound}
}
