package isorazor

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps templates in memory. Useful for tests and for hosts
// that load their templates at startup.
type MemoryStorage struct {
	mu        sync.RWMutex
	templates map[string][]*StoredTemplate // newest first
	closed    bool
}

// MemoryStorageDriver opens MemoryStorage instances
type MemoryStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{})
}

// Open ignores the connection string
func (d *MemoryStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	return NewMemoryStorage(), nil
}

// NewMemoryStorage creates an empty memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{templates: make(map[string][]*StoredTemplate)}
}

// Get returns the latest version of name
func (s *MemoryStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions := s.templates[name]
	if len(versions) == 0 {
		return nil, NewStorageTemplateNotFoundError(name)
	}
	return copyStoredTemplate(versions[0]), nil
}

// GetVersion returns one version of name
func (s *MemoryStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}

	for _, tmpl := range s.templates[name] {
		if tmpl.Version == version {
			return copyStoredTemplate(tmpl), nil
		}
	}
	return nil, NewStorageVersionNotFoundError(name, version)
}

// Save stores tmpl as the next version of its name
func (s *MemoryStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateStoredTemplate(tmpl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageClosedError()
	}

	versions := s.templates[tmpl.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[0].Version + 1
	}
	stored := newStoredVersion(tmpl, next, time.Now())
	s.templates[tmpl.Name] = append([]*StoredTemplate{stored}, versions...)
	return nil
}

// Delete removes every version of name
func (s *MemoryStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageClosedError()
	}

	if _, ok := s.templates[name]; !ok {
		return NewStorageTemplateNotFoundError(name)
	}
	delete(s.templates, name)
	return nil
}

// List returns the templates matching query
func (s *MemoryStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == nil {
		query = &TemplateQuery{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}

	var results []*StoredTemplate
	for _, versions := range s.templates {
		if !query.IncludeAllVersions {
			versions = versions[:1]
		}
		for _, tmpl := range versions {
			if matchesTemplateQuery(tmpl, query) {
				results = append(results, copyStoredTemplate(tmpl))
			}
		}
	}
	sortStored(results)
	return paginate(results, query), nil
}

// Exists reports whether name has any version
func (s *MemoryStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, NewStorageClosedError()
	}
	return len(s.templates[name]) > 0, nil
}

// ListVersions returns the version numbers of name, newest first
func (s *MemoryStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions := s.templates[name]
	out := make([]int, 0, len(versions))
	for _, tmpl := range versions {
		out = append(out, tmpl.Version)
	}
	return out, nil
}

// Close drops all templates
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.templates = nil
	return nil
}
