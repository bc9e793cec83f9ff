package database

import (
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// OptimizeDatabase verifies SQLite settings and creates the indexes the cache queries rely on
func OptimizeDatabase(db *gorm.DB, logger *pterm.Logger) error {
	logger.Debug("Applying database optimizations...")

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		logger.Warn("Failed to check journal mode", logger.Args("error", err))
	} else if journalMode != "wal" {
		logger.Warn("Database not in WAL mode", logger.Args("mode", journalMode))
	} else {
		logger.Trace("Database journal mode verified", logger.Args("mode", journalMode))
	}

	// IF NOT EXISTS makes this idempotent
	indexes := []string{
		// Freshness check on lookup (ip is the primary key, updated_at filters stale rows)
		`CREATE INDEX IF NOT EXISTS idx_geo_cache_ip_updated
		 ON geo_cache(ip, updated_at)`,

		// Source breakdown
		`CREATE INDEX IF NOT EXISTS idx_geo_cache_source_updated
		 ON geo_cache(source, updated_at)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			logger.Warn("Failed to create index", logger.Args("error", err))
			return err
		}
	}

	logger.Debug("Database optimizations completed", logger.Args("indexes", len(indexes)))
	return nil
}
