package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestImagesMigrationDefinesColumns(t *testing.T) {
	body, err := fs.ReadFile(migrationsFS, "migrations/000001_create_images.up.sql")
	require.NoError(t, err)

	for _, column := range []string{"id", "url", "storage_key", "uploaded_at"} {
		assert.Contains(t, string(body), column)
	}
}
