package migrate

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
}

func TestOutboxMigrationContainsSchema(t *testing.T) {
	matches, err := fs.Glob(FS, "migrations/*_create_outbox_messages.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := fs.ReadFile(FS, matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_messages",
		"message_id      UUID        PRIMARY KEY",
		"CHECK (status IN ('PENDING', 'SENT', 'FAILED'))",
		"ix_outbox_messages_status_created ON outbox_messages (status, created_at)",
		"WHERE status = 'PENDING'",
		"DROP TABLE IF EXISTS outbox_messages",
	} {
		assert.Containsf(t, content, sub, "missing expected statement %q", sub)
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"m/create_things.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"m/20250101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"empty": {
			"m/README.md": {Data: []byte("notes")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateFS(fsys, "m"))
		})
	}
}

func TestCreateSQLMigrationPassesValidation(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Outbox  Index!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_outbox_index.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestMaybeRunDevMigratesSQLite(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev},
		FeatureFlags: config.FeatureFlagsConfig{
			UseSQLite:   true,
			AutoMigrate: true,
			SQLitePath:  fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		},
	}
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
	client, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, MaybeRunDev(context.Background(), cfg, logg, client))
	assert.True(t, client.DB().Migrator().HasTable("outbox_messages"))
	assert.True(t, client.DB().Migrator().HasTable("contractor"))
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, nil, nil))
}
