package isorazor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FilesystemStorage keeps one JSON file per template version:
//
//	<root>/
//	  <template-name>/
//	    v1.json
//	    v2.json
type FilesystemStorage struct {
	mu     sync.RWMutex
	root   string
	closed bool
}

// FilesystemStorageDriver opens FilesystemStorage instances
type FilesystemStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameFilesystem, &FilesystemStorageDriver{})
}

// Open uses the connection string as the root directory
func (d *FilesystemStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	return NewFilesystemStorage(connectionString)
}

// NewFilesystemStorage creates the root directory if needed
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, &StorageError{Message: ErrMsgStorageInvalidName}
	}
	if err := os.MkdirAll(root, FilesystemDirPermissions); err != nil {
		return nil, &StorageError{Message: ErrMsgStorageWriteFailed, Name: root, Cause: err}
	}
	return &FilesystemStorage{root: root}, nil
}

// Root returns the storage directory
func (s *FilesystemStorage) Root() string { return s.root }

// Get returns the latest version of name
func (s *FilesystemStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateFilesystemName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, err := s.versions(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, NewStorageTemplateNotFoundError(name)
	}
	return s.load(name, versions[0])
}

// GetVersion returns one version of name
func (s *FilesystemStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateFilesystemName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}
	return s.load(name, version)
}

// Save writes tmpl as the next version file
func (s *FilesystemStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateStoredTemplate(tmpl); err != nil {
		return err
	}
	if err := validateFilesystemName(tmpl.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageClosedError()
	}

	dir := filepath.Join(s.root, tmpl.Name)
	if err := os.MkdirAll(dir, FilesystemDirPermissions); err != nil {
		return &StorageError{Message: ErrMsgStorageWriteFailed, Name: tmpl.Name, Cause: err}
	}
	versions, err := s.versions(tmpl.Name)
	if err != nil {
		return err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[0] + 1
	}

	stored := newStoredVersion(tmpl, next, time.Now())
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return &StorageError{Message: ErrMsgStorageWriteFailed, Name: tmpl.Name, Cause: err}
	}
	if err := os.WriteFile(s.versionPath(tmpl.Name, next), data, FilesystemFilePermissions); err != nil {
		return &StorageError{Message: ErrMsgStorageWriteFailed, Name: tmpl.Name, Version: next, Cause: err}
	}
	return nil
}

// Delete removes the template directory
func (s *FilesystemStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateFilesystemName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageClosedError()
	}

	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewStorageTemplateNotFoundError(name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return &StorageError{Message: ErrMsgStorageDeleteFailed, Name: name, Cause: err}
	}
	return nil
}

// List scans the root directory
func (s *FilesystemStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
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

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &StorageError{Message: ErrMsgStorageReadFailed, Name: s.root, Cause: err}
	}

	var results []*StoredTemplate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		versions, err := s.versions(name)
		if err != nil || len(versions) == 0 {
			continue
		}
		if !query.IncludeAllVersions {
			versions = versions[:1]
		}
		for _, v := range versions {
			tmpl, err := s.load(name, v)
			if err != nil {
				continue
			}
			if matchesTemplateQuery(tmpl, query) {
				results = append(results, tmpl)
			}
		}
	}
	sortStored(results)
	return paginate(results, query), nil
}

// Exists reports whether name has any version file
func (s *FilesystemStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateFilesystemName(name); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, NewStorageClosedError()
	}

	versions, err := s.versions(name)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// ListVersions returns the version numbers of name, newest first
func (s *FilesystemStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateFilesystemName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}
	return s.versions(name)
}

// Close marks the storage closed. Files stay on disk.
func (s *FilesystemStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FilesystemStorage) versionPath(name string, version int) string {
	return filepath.Join(s.root, name, FilesystemVersionPrefix+strconv.Itoa(version)+FilesystemVersionSuffix)
}

// versions lists the version numbers on disk, newest first
func (s *FilesystemStorage) versions(name string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return []int{}, nil
		}
		return nil, &StorageError{Message: ErrMsgStorageReadFailed, Name: name, Cause: err}
	}

	var versions []int
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(file, FilesystemVersionPrefix) || !strings.HasSuffix(file, FilesystemVersionSuffix) {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file, FilesystemVersionPrefix), FilesystemVersionSuffix))
		if err == nil && v > 0 {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

func (s *FilesystemStorage) load(name string, version int) (*StoredTemplate, error) {
	data, err := os.ReadFile(s.versionPath(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewStorageVersionNotFoundError(name, version)
		}
		return nil, &StorageError{Message: ErrMsgStorageReadFailed, Name: name, Version: version, Cause: err}
	}
	var tmpl StoredTemplate
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, &StorageError{Message: ErrMsgStorageReadFailed, Name: name, Version: version, Cause: err}
	}
	return &tmpl, nil
}

// validateFilesystemName rejects names that would escape the root
func validateFilesystemName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\:*?\"<>|") {
		return &StorageError{Message: ErrMsgStorageInvalidName, Name: name}
	}
	return nil
}
