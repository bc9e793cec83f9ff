package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// PoolStats is a snapshot of the geolocation cache connection pool
type PoolStats struct {
	MaxOpenConns int
	OpenConns    int
	InUse        int
	Idle         int
	WaitCount    int64
	WaitDuration time.Duration
	Timestamp    time.Time

	Utilization float64 // InUse / MaxOpenConns
	AvgWaitTime time.Duration
	IsSaturated bool
}

// PoolMonitor periodically samples pool statistics. Cache lookups sit on the
// request path, so saturation is reported as a warning.
type PoolMonitor struct {
	db        *sql.DB
	logger    *pterm.Logger
	interval  time.Duration
	threshold float64
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu           sync.RWMutex
	currentStats *PoolStats
	alertCount   int64
}

// NewPoolMonitor creates a monitor; threshold is the utilization (0-1) that triggers a warning
func NewPoolMonitor(db *sql.DB, logger *pterm.Logger, interval time.Duration, threshold float64) *PoolMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PoolMonitor{
		db:        db,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
	}
}

// Start begins monitoring in the background
func (pm *PoolMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	pm.cancel = cancel

	pm.wg.Add(1)
	go pm.monitorLoop(ctx)

	pm.logger.Debug("Connection pool monitoring started",
		pm.logger.Args("interval", pm.interval, "threshold", pm.threshold))
}

// Stop stops the monitor
func (pm *PoolMonitor) Stop() {
	if pm.cancel != nil {
		pm.cancel()
	}
	pm.wg.Wait()
}

// GetCurrentStats returns a copy of the latest sample, or nil before the first one
func (pm *PoolMonitor) GetCurrentStats() *PoolStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.currentStats == nil {
		return nil
	}
	statsCopy := *pm.currentStats
	return &statsCopy
}

// GetAlertCount returns how many samples crossed the threshold
func (pm *PoolMonitor) GetAlertCount() int64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.alertCount
}

func (pm *PoolMonitor) monitorLoop(ctx context.Context) {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.Sample()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.Sample()
		}
	}
}

// Sample collects and records one snapshot
func (pm *PoolMonitor) Sample() *PoolStats {
	dbStats := pm.db.Stats()

	stats := &PoolStats{
		MaxOpenConns: dbStats.MaxOpenConnections,
		OpenConns:    dbStats.OpenConnections,
		InUse:        dbStats.InUse,
		Idle:         dbStats.Idle,
		WaitCount:    dbStats.WaitCount,
		WaitDuration: dbStats.WaitDuration,
		Timestamp:    time.Now(),
	}
	if stats.MaxOpenConns > 0 {
		stats.Utilization = float64(stats.InUse) / float64(stats.MaxOpenConns)
		stats.IsSaturated = stats.InUse >= stats.MaxOpenConns
	}
	if stats.WaitCount > 0 {
		stats.AvgWaitTime = stats.WaitDuration / time.Duration(stats.WaitCount)
	}

	alert := pm.threshold > 0 && stats.Utilization >= pm.threshold

	pm.mu.Lock()
	pm.currentStats = stats
	if alert {
		pm.alertCount++
	}
	pm.mu.Unlock()

	pm.logger.Trace("Connection pool stats",
		pm.logger.Args(
			"max_open", stats.MaxOpenConns,
			"open", stats.OpenConns,
			"in_use", stats.InUse,
			"idle", stats.Idle,
			"wait_count", stats.WaitCount,
		))

	if alert {
		pm.logger.Warn("Geo cache connection pool under pressure",
			pm.logger.Args(
				"utilization", fmt.Sprintf("%.1f%%", stats.Utilization*100),
				"in_use", stats.InUse,
				"max_open", stats.MaxOpenConns,
				"saturated", stats.IsSaturated,
				"avg_wait_time", stats.AvgWaitTime,
			))
	}

	return stats
}
