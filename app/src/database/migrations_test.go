package database

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemrs/app/src/infra"
)

func TestApplyMigrationsRunsFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := fstest.MapFS{
		"0002_view.sql":  {Data: []byte("CREATE MATERIALIZED VIEW v AS SELECT 1;")},
		"0001_init.sql":  {Data: []byte("CREATE TABLE t (id int);")},
		"0003_empty.sql": {Data: []byte("  \n")},
		"README.md":      {Data: []byte("ignored")},
	}

	t.Log("files run in lexical order and empty scripts are skipped")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE t (id int);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE MATERIALIZED VIEW v AS SELECT 1;")).WillReturnResult(sqlmock.NewResult(0, 0))

	err = ApplyMigrations(context.Background(), db, source, infra.NewLogger(io.Discard, "test"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrationsStopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := fstest.MapFS{
		"0001_init.sql": {Data: []byte("CREATE TABLE t (id int);")},
		"0002_next.sql": {Data: []byte("CREATE TABLE u (id int);")},
	}
	mock.ExpectExec("CREATE TABLE t").WillReturnError(errors.New("permission denied"))

	err = ApplyMigrations(context.Background(), db, source, nil)
	assert.ErrorContains(t, err, `apply migration "0001_init.sql": permission denied`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrationsWithoutFiles(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, ApplyMigrations(context.Background(), db, fstest.MapFS{}, nil))
	assert.Error(t, ApplyMigrations(context.Background(), db, nil, nil))
}

func TestMigrationsSourceFallsBackToEmbedded(t *testing.T) {
	names, err := fs.Glob(MigrationsSource(filepath.Join(t.TempDir(), "missing")), "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_devices_sensors_view.sql"}, names)
}

func TestMigrationsSourcePrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_local.sql"), []byte("SELECT 1;"), 0o600))

	names, err := fs.Glob(MigrationsSource(dir), "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_local.sql"}, names)
}
