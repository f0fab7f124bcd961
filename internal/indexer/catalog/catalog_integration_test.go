//go:build integration

// Run with a scratch database:
//
//	SP_CATALOG_TEST_DSN="host=localhost user=retrieval password=localdev dbname=retrieval_test sslmode=disable" \
//	go test -tags=integration ./internal/indexer/catalog/...
package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/postgres"
)

func TestRecordAndCurrent(t *testing.T) {
	dsn := os.Getenv("SP_CATALOG_TEST_DSN")
	if dsn == "" {
		t.Skip("SP_CATALOG_TEST_DSN not set")
	}
	db, err := postgres.Open(dsn, config.Default().Postgres)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	c := New(db)
	require.NoError(t, c.EnsureSchema(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE index_builds CASCADE`)
	require.NoError(t, err)

	part := disk.PartStatistics{PartName: disk.PartPostings, Class: "position", DefaultOperator: "extents", CollectionLength: 8, DocumentCount: 3}
	first, err := c.Record(ctx, Build{Shard: 0, Dir: "/data/shard-0/1", Documents: 3, Parts: []disk.PartStatistics{part}})
	require.NoError(t, err)
	_, err = c.Record(ctx, Build{Shard: 1, Dir: "/data/shard-1/1", Documents: 4})
	require.NoError(t, err)
	latest, err := c.Record(ctx, Build{Shard: 0, Dir: "/data/shard-0/2", Documents: 5})
	require.NoError(t, err)
	assert.Greater(t, latest, first)

	builds, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/shard-0/2", "/data/shard-1/1"}, Dirs(builds))

	parts, err := c.Parts(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []disk.PartStatistics{part}, parts)
}
