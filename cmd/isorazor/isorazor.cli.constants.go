package main

// Command names
const (
	CmdNameRender  = "render"
	CmdNameCompile = "compile"
	CmdNameWorker  = "worker"
	CmdNameVersion = "version"
)

// Flag names
const (
	FlagTemplate    = "template"
	FlagName        = "name"
	FlagLayout      = "layout"
	FlagInclude     = "include"
	FlagData        = "data"
	FlagDataFile    = "data-file"
	FlagViewBag     = "bag"
	FlagOutput      = "output"
	FlagTimeout     = "timeout"
	FlagIsolation   = "isolation"
	FlagEncoding    = "encoding"
	FlagBaseURL     = "base-url"
	FlagConfig      = "config"
	FlagTemplateDir = "template-dir"
	FlagPersist     = "persist"
	FlagAsLayout    = "as-layout"
	FlagFormat      = "format"
	FlagVerbose     = "verbose"
)

// Flag short names
const (
	FlagTemplateShort = "t"
	FlagLayoutShort   = "l"
	FlagIncludeShort  = "i"
	FlagDataShort     = "d"
	FlagDataFileShort = "f"
	FlagOutputShort   = "o"
	FlagFormatShort   = "F"
	FlagVerboseShort  = "v"
)

// Flag defaults
const (
	FlagDefaultOutput   = "-"
	FlagDefaultFormat   = OutputFormatText
	FlagDefaultTimeout  = 5000
	FlagDefaultEncoding = "html"
)

// Output formats
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

// Exit codes
const (
	ExitCodeSuccess         = 0
	ExitCodeError           = 1
	ExitCodeUsageError      = 2
	ExitCodeValidationError = 3
	ExitCodeInputError      = 4
	ExitCodeTimeout         = 5
)

// InputSourceStdin reads a template from stdin
const InputSourceStdin = "-"

// NamedFileSeparator splits "name=path" flag values
const NamedFileSeparator = "="

// Error messages
const (
	ErrMsgMissingTemplate   = "template source required"
	ErrMsgUnknownCommand    = "unknown command"
	ErrMsgInvalidJSON       = "invalid JSON data"
	ErrMsgReadFileFailed    = "failed to read file"
	ErrMsgWriteOutputFailed = "failed to write output"
	ErrMsgCompileFailed     = "template compilation failed"
	ErrMsgRenderFailed      = "template rendering failed"
	ErrMsgRenderTimeout     = "template rendering timed out"
	ErrMsgInvalidFormat     = "invalid output format"
	ErrMsgSetupFailed       = "failed to set up templater"
)

// CLI metadata
const (
	CLIName        = "isorazor"
	CLIDescription = "Compile and render Razor-style templates in isolation"
)

// Version output
const (
	VersionTextTemplate = "isorazor version %s\nModule: %s\nGo: %s\n"
	VersionUnknown      = "unknown"
)

// FilePermissions is used for output files
const FilePermissions = 0o644

// Format strings
const (
	FmtErrorWithCause = "%s: %v\n"
)
