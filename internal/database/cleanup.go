package database

import (
	"sync"
	"time"

	"accesslynx/internal/database/repositories"

	"github.com/pterm/pterm"
)

// CleanupService purges expired geolocation cache entries
type CleanupService struct {
	repo     repositories.GeoCacheRepository
	logger   *pterm.Logger
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	// Stats tracking
	mu             sync.Mutex
	lastRunTime    time.Time
	recordsDeleted int64
}

// CleanupStats holds statistics about cleanup operations
type CleanupStats struct {
	LastRunTime    time.Time
	RecordsDeleted int64
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(repo repositories.GeoCacheRepository, logger *pterm.Logger, ttl, interval time.Duration) *CleanupService {
	return &CleanupService{
		repo:     repo,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic cleanup loop
func (s *CleanupService) Start() {
	if s.ttl <= 0 || s.interval <= 0 {
		s.logger.Info("Geo cache expiry disabled, cleanup service not started")
		return
	}

	s.running = true
	s.logger.Info("Starting geo cache cleanup service",
		s.logger.Args("ttl", s.ttl, "interval", s.interval))

	s.wg.Add(1)
	go s.cleanupLoop()
}

// Stop stops the cleanup service and waits for an in-progress run
func (s *CleanupService) Stop() {
	if !s.running {
		return
	}

	s.logger.Info("Stopping geo cache cleanup service")
	close(s.stopChan)
	s.wg.Wait()
	s.running = false
}

func (s *CleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce deletes every entry older than the TTL
func (s *CleanupService) RunOnce() int64 {
	startTime := time.Now()
	cutoff := startTime.Add(-s.ttl)

	deleted, err := s.repo.DeleteOlderThan(cutoff, 1000)
	if err != nil {
		s.logger.WithCaller().Error("Failed to delete expired geo cache entries",
			s.logger.Args("error", err, "cutoff", cutoff.Format("2006-01-02 15:04:05")))
		return deleted
	}

	s.mu.Lock()
	s.lastRunTime = startTime
	s.recordsDeleted += deleted
	s.mu.Unlock()

	if deleted > 0 {
		s.logger.Info("Geo cache cleanup completed",
			s.logger.Args("records_deleted", deleted, "duration", time.Since(startTime).Round(time.Millisecond)))
	} else {
		s.logger.Trace("Geo cache cleanup found nothing to delete")
	}
	return deleted
}

// GetStats returns cleanup statistics
func (s *CleanupService) GetStats() *CleanupStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &CleanupStats{
		LastRunTime:    s.lastRunTime,
		RecordsDeleted: s.recordsDeleted,
	}
}
