package postgres

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePairedAndContiguous(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	sort.Strings(names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		base := strings.TrimPrefix(n, "migrations/")
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			ups[strings.TrimSuffix(base, ".up.sql")] = true
		case strings.HasSuffix(base, ".down.sql"):
			downs[strings.TrimSuffix(base, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", n)
		}
	}
	assert.Equal(t, ups, downs)
	require.NotEmpty(t, ups)

	src, err := iofs.New(migrations, "migrations")
	require.NoError(t, err)
	defer src.Close()

	v, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	count := 1
	for {
		next, err := src.Next(v)
		if err != nil {
			break
		}
		assert.Equal(t, v+1, next)
		v = next
		count++
	}
	assert.Equal(t, len(ups), count)
}

func TestLatestMigrationAddsVersionAndOptions(t *testing.T) {
	b, err := fs.ReadFile(migrations, "migrations/000002_order_version_line_options.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(b), "ADD COLUMN version")
	assert.Contains(t, string(b), "ADD COLUMN options JSONB")
}

func TestMigrateAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("SETTLEMENT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SETTLEMENT_TEST_DATABASE_URL not set")
	}
	require.NoError(t, Migrate(context.Background(), dsn))
	// A second run finds nothing to apply.
	require.NoError(t, Migrate(context.Background(), dsn))
}
