package isorazor

import (
	"time"

	"github.com/itsatony/go-isorazor/internal"
)

// Default configuration values
const (
	DefaultRenderTimeout   = 5000 * time.Millisecond
	DefaultNamespace       = "IsolatedTemplates.Template"
	DefaultBaseType        = BaseTypeTemplate
	DefaultLeaseGrace      = time.Minute
	DefaultWorkerCount     = 2
	DefaultShutdownTimeout = 5 * time.Second
)

// DefaultImports are the function groups every template sees unless the
// caller replaces them.
var DefaultImports = []string{
	ImportSystem,
	ImportCollections,
	ImportLinq,
	ImportText,
	ImportIsorazor,
}

// Import names a template can list to reach function groups
const (
	ImportSystem      = internal.GroupSystem
	ImportCollections = internal.GroupCollections
	ImportLinq        = internal.GroupLinq
	ImportText        = internal.GroupText
	ImportIsorazor    = internal.GroupIsorazor
	ImportHtml        = internal.GroupHtml
	ImportIO          = internal.GroupIO
)

// Base type names
const (
	BaseTypeTemplate = "TemplateBase"
	BaseTypeLayout   = "LayoutBase"
	BaseTypeModelFmt = "TemplateBase[%s]"
	ModelNameAny     = "any"
	ModelNameMap     = "map"
	ModelTypeNone    = "none"
)

// File names and formats
const (
	CacheFileName         = "isorazor.templates.cache"
	ArtifactExtension     = ".rzc"
	ArtifactFormat        = "isorazor/artifact.v1"
	ArtifactFilePerm      = 0o644
	TemplateDirPerm       = 0o755
	ClassNamePrefix       = "C"
	GroupMemberSeparator  = "_"
	QualifiedNameSep      = "."
	BaseURLMarker         = "~"
	HTMLNewLine           = internal.HTMLLineBreak
	SQLiteCacheTable      = "isorazor_cache_entries"
	SQLiteDriverName      = "sqlite3"
	SQLiteDefaultFileName = "isorazor.templates.db"
)

// Worker process environment
const (
	EnvWorker       = "ISORAZOR_WORKER"
	EnvWorkerConfig = "ISORAZOR_WORKER_CONFIG"
	EnvWorkerDebug  = "ISORAZOR_WORKER_DEBUG"
	EnvWorkerOn     = "1"
)

// Isolation modes
const (
	IsolationInProcess = "inprocess"
	IsolationProcess   = "process"
)

// Storage driver names
const (
	StorageDriverNameMemory     = "memory"
	StorageDriverNameFilesystem = "filesystem"
	StorageDriverNamePostgres   = "postgres"
)

// Filesystem storage constants
const (
	FilesystemDirPermissions  = 0o755
	FilesystemFilePermissions = 0o644
	FilesystemVersionPrefix   = "v"
	FilesystemVersionSuffix   = ".json"
)

// PostgreSQL storage constants
const (
	PostgresTablePrefix            = "isorazor_"
	PostgresDefaultMaxOpenConns    = 10
	PostgresDefaultMaxIdleConns    = 2
	PostgresDefaultConnMaxLifetime = 5 * time.Minute
	PostgresDefaultConnMaxIdleTime = 5 * time.Minute
	PostgresDefaultQueryTimeout    = 30 * time.Second
)

// Tracing names
const (
	TracerName          = "github.com/itsatony/go-isorazor"
	SpanCompile         = "isorazor.Compile"
	SpanRender          = "isorazor.Render"
	SpanDeleteTemplate  = "isorazor.DeleteTemplate"
	AttrTemplateName    = "isorazor.template.name"
	AttrTemplateCached  = "isorazor.template.cached"
	AttrTemplateType    = "isorazor.template.type"
	AttrRenderTimeoutMs = "isorazor.render.timeout_ms"
)

// Error metadata keys
const (
	MetaKeyTemplateName = "template_name"
	MetaKeyLayoutName   = "layout_name"
	MetaKeySection      = "section"
	MetaKeyExpected     = "expected"
	MetaKeyActual       = "actual"
	MetaKeyKey          = "key"
	MetaKeyPath         = "path"
	MetaKeyTimeout      = "timeout"
	MetaKeyBaseType     = "base_type"
	MetaKeyLocation     = "location"
	MetaKeyDriverName   = "driver"
)

// Logging messages
const (
	LogMsgCompileCacheHit   = "template compile served from cache"
	LogMsgCompileStart      = "template compile started"
	LogMsgCompileDone       = "template compiled"
	LogMsgCompileFailed     = "template compile failed"
	LogMsgRenderStart       = "template render started"
	LogMsgRenderDone        = "template rendered"
	LogMsgRenderFailed      = "template render failed"
	LogMsgRenderTimeout     = "template render exceeded deadline"
	LogMsgEvicted           = "template evicted"
	LogMsgArtifactRemoved   = "artifact file removed"
	LogMsgCachePersisted    = "artifact cache persisted"
	LogMsgCacheRestored     = "artifact cache restored"
	LogMsgCachePersistError = "artifact cache persistence failed"
	LogMsgBoundaryCreated   = "isolation boundary created"
	LogMsgBoundaryClosed    = "isolation boundary closed"
	LogMsgLeaseExpired      = "boundary lease expired"
	LogMsgWorkerStarted     = "worker process started"
	LogMsgWorkerKilled      = "worker process killed"
	LogMsgWorkerExited      = "worker process exited"
	LogMsgWorkerProtocol    = "worker protocol error"
	LogMsgStorageFallback   = "template compiled from storage"
)

// Logging field names
const (
	LogFieldName      = "name"
	LogFieldLocation  = "location"
	LogFieldTypeName  = "type_name"
	LogFieldClasses   = "classes"
	LogFieldDuration  = "duration"
	LogFieldTimeout   = "timeout"
	LogFieldPID       = "pid"
	LogFieldWorker    = "worker"
	LogFieldEntries   = "entries"
	LogFieldIsolation = "isolation"
	LogFieldPath      = "path"
	LogFieldVersion   = "version"
)
