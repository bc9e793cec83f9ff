package repositories

import (
	"errors"
	"time"

	"accesslynx/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GeoCacheRepository handles persistence of cached geolocation lookups
type GeoCacheRepository interface {
	// Find returns the entry for ip updated after notBefore, or nil when absent or stale
	Find(ip string, notBefore time.Time) (*models.GeoCacheEntry, error)
	Upsert(entry *models.GeoCacheEntry) error
	DeleteOlderThan(cutoff time.Time, batchSize int) (int64, error)
	Count() (int64, error)
}

type geoCacheRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewGeoCacheRepository creates a new geolocation cache repository
func NewGeoCacheRepository(db *gorm.DB, logger *pterm.Logger) GeoCacheRepository {
	return &geoCacheRepo{
		db:     db,
		logger: logger,
	}
}

func (r *geoCacheRepo) Find(ip string, notBefore time.Time) (*models.GeoCacheEntry, error) {
	var entry models.GeoCacheEntry
	err := r.db.Where("ip = ? AND updated_at >= ?", ip, notBefore).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Trace("Geo cache miss", r.logger.Args("ip", ip))
			return nil, nil
		}
		r.logger.WithCaller().Error("Failed to read geo cache", r.logger.Args("ip", ip, "error", err))
		return nil, err
	}
	return &entry, nil
}

// Upsert inserts or refreshes the entry for its IP
func (r *geoCacheRepo) Upsert(entry *models.GeoCacheEntry) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip"}},
		DoUpdates: clause.AssignmentColumns([]string{"country", "city", "location", "source", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		r.logger.WithCaller().Error("Failed to store geo cache entry", r.logger.Args("ip", entry.IP, "error", err))
		return err
	}
	r.logger.Trace("Stored geo cache entry", r.logger.Args("ip", entry.IP, "source", entry.Source))
	return nil
}

// DeleteOlderThan removes stale entries in batches to avoid long locks
func (r *geoCacheRepo) DeleteOlderThan(cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	totalDeleted := int64(0)
	for {
		result := r.db.Exec(`
			DELETE FROM geo_cache
			WHERE ip IN (
				SELECT ip FROM geo_cache
				WHERE updated_at < ?
				LIMIT ?
			)
		`, cutoff, batchSize)
		if result.Error != nil {
			return totalDeleted, result.Error
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected == 0 {
			break
		}
	}
	return totalDeleted, nil
}

func (r *geoCacheRepo) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.GeoCacheEntry{}).Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count geo cache entries", r.logger.Args("error", err))
		return 0, err
	}
	return count, nil
}
