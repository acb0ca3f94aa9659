package isorazor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageConformance exercises the TemplateStorage contract
func runStorageConformance(t *testing.T, storage TemplateStorage) {
	t.Helper()
	ctx := context.Background()

	t.Run("save assigns versions", func(t *testing.T) {
		first := &StoredTemplate{Name: "greeting", Source: "v1", Tags: []string{"mail"}, Metadata: map[string]string{"a": "b"}}
		require.NoError(t, storage.Save(ctx, first))
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, 1, first.Version)
		assert.Equal(t, TemplateKindPage, first.Kind)
		assert.False(t, first.UpdatedAt.IsZero())

		second := &StoredTemplate{Name: "greeting", Source: "v2", Tags: []string{"mail"}}
		require.NoError(t, storage.Save(ctx, second))
		assert.Equal(t, 2, second.Version)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("get returns latest", func(t *testing.T) {
		tmpl, err := storage.Get(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, "v2", tmpl.Source)
		assert.Equal(t, 2, tmpl.Version)

		old, err := storage.GetVersion(ctx, "greeting", 1)
		require.NoError(t, err)
		assert.Equal(t, "v1", old.Source)
		assert.Equal(t, map[string]string{"a": "b"}, old.Metadata)

		_, err = storage.GetVersion(ctx, "greeting", 9)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
		_, err = storage.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("versions and exists", func(t *testing.T) {
		versions, err := storage.ListVersions(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 1}, versions)

		exists, err := storage.Exists(ctx, "greeting")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = storage.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("list filters", func(t *testing.T) {
		require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "layout-main", Source: "@RenderBody()", Kind: TemplateKindLayout}))
		require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "order", Source: "@Model.ID", Model: "Order"}))

		all, err := storage.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "greeting", all[0].Name)
		assert.Equal(t, 2, all[0].Version)

		layouts, err := storage.List(ctx, &TemplateQuery{Kind: TemplateKindLayout})
		require.NoError(t, err)
		require.Len(t, layouts, 1)
		assert.Equal(t, BaseTypeLayout, layouts[0].BaseType())

		tagged, err := storage.List(ctx, &TemplateQuery{Tags: []string{"mail"}, IncludeAllVersions: true})
		require.NoError(t, err)
		assert.Len(t, tagged, 2)

		prefixed, err := storage.List(ctx, &TemplateQuery{NamePrefix: "or"})
		require.NoError(t, err)
		require.Len(t, prefixed, 1)
		assert.Equal(t, ModelBaseType("Order"), prefixed[0].BaseType())

		page, err := storage.List(ctx, &TemplateQuery{Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "layout-main", page[0].Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, storage.Delete(ctx, "order"))
		_, err := storage.Get(ctx, "order")
		assert.ErrorIs(t, err, ErrTemplateNotFound)
		assert.ErrorIs(t, storage.Delete(ctx, "order"), ErrTemplateNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		assert.Error(t, storage.Save(ctx, nil))
		assert.Error(t, storage.Save(ctx, &StoredTemplate{Name: " "}))
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, storage.Close())
		_, err := storage.Get(ctx, "greeting")
		assert.ErrorIs(t, err, ErrDisposed)
	})
}

func TestMemoryStorage_Conformance(t *testing.T) {
	runStorageConformance(t, NewMemoryStorage())
}

func TestFilesystemStorage_Conformance(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	runStorageConformance(t, storage)
}

func TestFilesystemStorage_RejectsEscapingNames(t *testing.T) {
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"../x", "a/b", "..", `a\b`} {
		assert.Error(t, storage.Save(ctx, &StoredTemplate{Name: name, Source: "x"}), name)
	}
}

func TestFilesystemStorage_Reopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first, err := NewFilesystemStorage(root)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, &StoredTemplate{Name: "kept", Source: "x"}))
	require.NoError(t, first.Close())

	second, err := OpenStorage(StorageDriverNameFilesystem, root)
	require.NoError(t, err)
	tmpl, err := second.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "x", tmpl.Source)
	assert.FileExists(t, filepath.Join(root, "kept", FilesystemVersionPrefix+"1"+FilesystemVersionSuffix))
}

func TestStorageDrivers(t *testing.T) {
	drivers := ListStorageDrivers()
	assert.Contains(t, drivers, StorageDriverNameMemory)
	assert.Contains(t, drivers, StorageDriverNameFilesystem)
	assert.Contains(t, drivers, StorageDriverNamePostgres)

	_, err := OpenStorage("nope", "")
	assert.Error(t, err)

	assert.Panics(t, func() { RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{}) })

	_, err = NewPostgresStorage(PostgresConfig{})
	assert.Error(t, err)
}
