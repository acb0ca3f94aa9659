//go:build integration

package isorazor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer creates an ephemeral PostgreSQL container for testing.
func setupPostgresContainer(t *testing.T) (*PostgresStorage, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("isorazor_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	storage, err := NewPostgresStorage(PostgresConfig{
		ConnectionString: connStr,
		AutoMigrate:      true,
		QueryTimeout:     30 * time.Second,
	})
	require.NoError(t, err, "failed to create postgres storage")

	cleanup := func() {
		_ = storage.Close()
		_ = container.Terminate(ctx)
	}
	return storage, cleanup
}

func TestPostgres_E2E_Conformance(t *testing.T) {
	storage, cleanup := setupPostgresContainer(t)
	defer cleanup()

	version, err := storage.CurrentSchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Positive(t, version)

	runStorageConformance(t, storage)
}

func TestPostgres_E2E_RenderStored(t *testing.T) {
	storage, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "Shell", Kind: TemplateKindLayout, Source: "[@RenderBody()]"}))
	require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "card", Model: "Person", Source: `@{ Layout = "Shell"; }@Model.Name`}))

	tr := newTestTemplater(t, WithStorage(storage))
	out, err := tr.RenderStored(ctx, "card", testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[Ada]", out)
}
