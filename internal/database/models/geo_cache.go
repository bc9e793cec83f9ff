package models

import (
	"time"
)

// GeoCacheEntry stores a successful geolocation lookup
type GeoCacheEntry struct {
	IP        string    `gorm:"primaryKey;size:64"`
	Country   string
	City      string
	Location  string    // "lat,lon" as returned by the provider
	Source    string    `gorm:"not null;index"` // Provider name (ipinfo, maxmind)
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_geo_cache_updated"`
}

func (GeoCacheEntry) TableName() string {
	return "geo_cache"
}
