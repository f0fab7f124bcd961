// Package catalog records finished index builds and their part statistics
// in postgres, so searchers can find the current directory of every shard.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	id         BIGSERIAL PRIMARY KEY,
	shard      INTEGER     NOT NULL,
	dir        TEXT        NOT NULL,
	documents  BIGINT      NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS index_builds_shard_idx ON index_builds (shard, id DESC);
CREATE TABLE IF NOT EXISTS index_parts (
	build_id               BIGINT NOT NULL REFERENCES index_builds (id) ON DELETE CASCADE,
	part                   TEXT   NOT NULL,
	class                  TEXT   NOT NULL,
	default_operator       TEXT   NOT NULL,
	collection_length      BIGINT NOT NULL,
	vocab_count            BIGINT NOT NULL,
	document_count         BIGINT NOT NULL,
	highest_frequency      BIGINT NOT NULL,
	highest_document_count BIGINT NOT NULL,
	PRIMARY KEY (build_id, part)
);`

type Build struct {
	ID        int64                 `json:"id"`
	Shard     int                   `json:"shard"`
	Dir       string                `json:"dir"`
	Documents int64                 `json:"documents"`
	Parts     []disk.PartStatistics `json:"parts,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
}

type Catalog struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Catalog {
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "index-catalog"),
	}
}

// EnsureSchema creates the catalog tables when they do not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Record stores b and its parts in one transaction and returns the new
// build id.
func (c *Catalog) Record(ctx context.Context, b Build) (int64, error) {
	var id int64
	err := c.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO index_builds (shard, dir, documents) VALUES ($1, $2, $3) RETURNING id, created_at`,
			b.Shard, b.Dir, b.Documents,
		).Scan(&id, &b.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting build: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_parts
			(build_id, part, class, default_operator, collection_length, vocab_count,
			 document_count, highest_frequency, highest_document_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return fmt.Errorf("preparing part insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range b.Parts {
			_, err := stmt.ExecContext(ctx, id, p.PartName, p.Class, p.DefaultOperator,
				p.CollectionLength, p.VocabCount, p.DocumentCount, p.HighestFrequency, p.HighestDocumentCount)
			if err != nil {
				return fmt.Errorf("inserting part %s: %w", p.PartName, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("build recorded", "build_id", id, "shard", b.Shard, "dir", b.Dir, "parts", len(b.Parts))
	return id, nil
}

// Current returns the latest build of every shard, ordered by shard.
func (c *Catalog) Current(ctx context.Context) ([]Build, error) {
	rows, err := c.db.DB.QueryContext(ctx, `
		SELECT DISTINCT ON (shard) id, shard, dir, documents, created_at
		FROM index_builds
		ORDER BY shard, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying current builds: %w", err)
	}
	defer rows.Close()
	var builds []Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.Shard, &b.Dir, &b.Documents, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// Parts returns the recorded part statistics of a build.
func (c *Catalog) Parts(ctx context.Context, buildID int64) ([]disk.PartStatistics, error) {
	rows, err := c.db.DB.QueryContext(ctx, `
		SELECT part, class, default_operator, collection_length, vocab_count,
		       document_count, highest_frequency, highest_document_count
		FROM index_parts WHERE build_id = $1 ORDER BY part`, buildID)
	if err != nil {
		return nil, fmt.Errorf("querying parts of build %d: %w", buildID, err)
	}
	defer rows.Close()
	var parts []disk.PartStatistics
	for rows.Next() {
		var p disk.PartStatistics
		err := rows.Scan(&p.PartName, &p.Class, &p.DefaultOperator, &p.CollectionLength, &p.VocabCount,
			&p.DocumentCount, &p.HighestFrequency, &p.HighestDocumentCount)
		if err != nil {
			return nil, fmt.Errorf("scanning part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// Dirs lists the directories of the current builds in shard order.
func Dirs(builds []Build) []string {
	dirs := make([]string, len(builds))
	for i, b := range builds {
		dirs[i] = b.Dir
	}
	return dirs
}
