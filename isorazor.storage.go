package isorazor

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TemplateKind tells the templater how to compile a stored template
type TemplateKind string

// Template kinds
const (
	TemplateKindPage   TemplateKind = "template"
	TemplateKindLayout TemplateKind = "layout"
)

// StoredTemplate is one version of a template source kept in a storage
// backend.
type StoredTemplate struct {
	// ID is unique per version
	ID string `json:"id"`

	Name   string `json:"name"`
	Source string `json:"source"`

	// Kind defaults to TemplateKindPage
	Kind TemplateKind `json:"kind,omitempty"`

	// Model is the registered model name of a typed template. Empty means
	// the template is untyped.
	Model string `json:"model,omitempty"`

	// Imports replaces the templater's default imports when set
	Imports []string `json:"imports,omitempty"`

	// Version starts at 1; higher versions are newer.
	Version int `json:"version"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`

	// UpdatedAt doubles as the template timestamp for cache validation.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BaseType returns the base type the template compiles against
func (t *StoredTemplate) BaseType() string {
	if t.Kind == TemplateKindLayout {
		return BaseTypeLayout
	}
	if t.Model != "" {
		return ModelBaseType(t.Model)
	}
	return DefaultBaseType
}

// TemplateQuery filters List results
type TemplateQuery struct {
	NamePrefix   string
	NameContains string
	Kind         TemplateKind
	// Tags must all be present
	Tags []string
	// Limit of 0 means no limit
	Limit  int
	Offset int
	// IncludeAllVersions lists every version instead of the latest only
	IncludeAllVersions bool
}

// TemplateStorage is a pluggable source of template text. Implementations
// must be safe for concurrent use.
type TemplateStorage interface {
	// Get returns the latest version; ErrTemplateNotFound when unknown.
	Get(ctx context.Context, name string) (*StoredTemplate, error)
	GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error)
	// Save stores a new version and fills in ID, Version and timestamps.
	Save(ctx context.Context, tmpl *StoredTemplate) error
	// Delete removes every version of name
	Delete(ctx context.Context, name string) error
	// List orders by name, then version descending.
	List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error)
	Exists(ctx context.Context, name string) (bool, error)
	ListVersions(ctx context.Context, name string) ([]int, error)
	Close() error
}

// StorageDriver opens a storage from a driver-specific connection string
type StorageDriver interface {
	Open(connectionString string) (TemplateStorage, error)
}

var (
	storageDriversMu sync.RWMutex
	storageDrivers   = make(map[string]StorageDriver)
)

// RegisterStorageDriver registers a driver by name. It panics on a nil or
// duplicate driver.
func RegisterStorageDriver(name string, driver StorageDriver) {
	storageDriversMu.Lock()
	defer storageDriversMu.Unlock()

	if driver == nil {
		panic(ErrMsgStorageDriverNotFound + ": " + name)
	}
	if _, exists := storageDrivers[name]; exists {
		panic(ErrMsgStorageDriverExists + ": " + name)
	}
	storageDrivers[name] = driver
}

// OpenStorage opens a storage with the named driver.
//
//	storage, err := isorazor.OpenStorage("memory", "")
//	storage, err := isorazor.OpenStorage("filesystem", "/srv/templates")
func OpenStorage(driverName, connectionString string) (TemplateStorage, error) {
	storageDriversMu.RLock()
	driver, ok := storageDrivers[driverName]
	storageDriversMu.RUnlock()

	if !ok {
		return nil, NewStorageDriverNotFoundError(driverName)
	}
	return driver.Open(connectionString)
}

// ListStorageDrivers returns the registered driver names, sorted
func ListStorageDrivers() []string {
	storageDriversMu.RLock()
	defer storageDriversMu.RUnlock()

	names := make([]string, 0, len(storageDrivers))
	for name := range storageDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorageDriverNotFoundError reports an unregistered driver name
func NewStorageDriverNotFoundError(name string) *StorageError {
	return &StorageError{Message: ErrMsgStorageDriverNotFound, Name: name}
}

// NewStorageClosedError reports use of a closed storage
func NewStorageClosedError() *StorageError {
	return &StorageError{Message: ErrMsgStorageClosed, Cause: ErrDisposed}
}

// validateStoredTemplate checks a template before it is saved
func validateStoredTemplate(tmpl *StoredTemplate) error {
	if tmpl == nil {
		return &StorageError{Message: ErrMsgStorageNilTemplate}
	}
	if strings.TrimSpace(tmpl.Name) == "" {
		return &StorageError{Message: ErrMsgStorageInvalidName}
	}
	return nil
}

// newStoredVersion builds the record Save writes and copies the generated
// fields back into tmpl.
func newStoredVersion(tmpl *StoredTemplate, version int, now time.Time) *StoredTemplate {
	kind := tmpl.Kind
	if kind == "" {
		kind = TemplateKindPage
	}
	stored := &StoredTemplate{
		ID:        uuid.NewString(),
		Name:      tmpl.Name,
		Source:    tmpl.Source,
		Kind:      kind,
		Model:     tmpl.Model,
		Imports:   slices.Clone(tmpl.Imports),
		Version:   version,
		Metadata:  maps.Clone(tmpl.Metadata),
		Tags:      slices.Clone(tmpl.Tags),
		CreatedBy: tmpl.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tmpl.ID = stored.ID
	tmpl.Kind = stored.Kind
	tmpl.Version = stored.Version
	tmpl.CreatedAt = stored.CreatedAt
	tmpl.UpdatedAt = stored.UpdatedAt
	return stored
}

func copyStoredTemplate(tmpl *StoredTemplate) *StoredTemplate {
	if tmpl == nil {
		return nil
	}
	out := *tmpl
	out.Imports = slices.Clone(tmpl.Imports)
	out.Metadata = maps.Clone(tmpl.Metadata)
	out.Tags = slices.Clone(tmpl.Tags)
	return &out
}

// matchesTemplateQuery applies the query filters that do not depend on
// version ordering.
func matchesTemplateQuery(tmpl *StoredTemplate, query *TemplateQuery) bool {
	if query.NamePrefix != "" && !strings.HasPrefix(tmpl.Name, query.NamePrefix) {
		return false
	}
	if query.NameContains != "" && !strings.Contains(tmpl.Name, query.NameContains) {
		return false
	}
	if query.Kind != "" && tmpl.Kind != query.Kind {
		return false
	}
	for _, tag := range query.Tags {
		if !slices.Contains(tmpl.Tags, tag) {
			return false
		}
	}
	return true
}

// paginate applies Offset and Limit to sorted results
func paginate(results []*StoredTemplate, query *TemplateQuery) []*StoredTemplate {
	if query.Offset > 0 {
		if query.Offset >= len(results) {
			return []*StoredTemplate{}
		}
		results = results[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results
}

// sortStored orders by name, then version descending
func sortStored(results []*StoredTemplate) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Name != results[j].Name {
			return results[i].Name < results[j].Name
		}
		return results[i].Version > results[j].Version
	})
}
