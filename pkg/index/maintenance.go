package index

import (
	"context"
	"fmt"
)

// Optimize refreshes the query planner statistics, merges the full text
// index segments and truncates the write-ahead log.
func (i *Index) Optimize(ctx context.Context) error {
	for _, stmt := range []string{
		"PRAGMA optimize",
		"ANALYZE",
		"INSERT INTO issues_fts (issues_fts) VALUES ('optimize')",
		"PRAGMA wal_checkpoint(TRUNCATE)",
	} {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Vacuum rebuilds the database file.
func (i *Index) Vacuum(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// IntegrityCheck runs the SQLite integrity check and, when deep is set,
// the FTS5 consistency check of the issues text index.
func (i *Index) IntegrityCheck(ctx context.Context, deep bool) error {
	var result string
	if err := i.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	if !deep {
		return nil
	}
	if _, err := i.db.ExecContext(ctx, "INSERT INTO issues_fts (issues_fts, rank) VALUES ('integrity-check', 1)"); err != nil {
		return fmt.Errorf("fts integrity check: %w", err)
	}
	return nil
}

// RebuildFTS regenerates the issues text index from the issues table.
func (i *Index) RebuildFTS(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, "INSERT INTO issues_fts (issues_fts) VALUES ('rebuild')"); err != nil {
		return fmt.Errorf("fts rebuild: %w", err)
	}
	return nil
}
