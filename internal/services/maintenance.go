package services

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/riftline/rift-rewind/internal/cache"
	"github.com/riftline/rift-rewind/internal/usage"
)

// MaintenanceService runs the background housekeeping: fast-tier cache
// pruning, usage-bucket pruning, and periodic usage-stat flushes.
type MaintenanceService struct {
	cache     *cache.Layered
	monitor   *usage.Monitor
	logger    *logrus.Logger
	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

func NewMaintenanceService(layered *cache.Layered, monitor *usage.Monitor, logger *logrus.Logger) *MaintenanceService {
	return &MaintenanceService{
		cache:   layered,
		monitor: monitor,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start schedules the housekeeping jobs.
func (s *MaintenanceService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("maintenance service is already running")
	}

	if _, err := s.cron.AddFunc("@every 10m", s.pruneCache); err != nil {
		return fmt.Errorf("failed to schedule cache pruning: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 1h", s.pruneUsage); err != nil {
		return fmt.Errorf("failed to schedule usage pruning: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 5m", s.flushUsage); err != nil {
		return fmt.Errorf("failed to schedule usage flush: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Maintenance service started")
	return nil
}

// Stop halts the scheduled jobs and flushes usage stats one last time.
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.flushUsage()

	s.isRunning = false
	s.logger.Info("Maintenance service stopped")
}

func (s *MaintenanceService) pruneCache() {
	if removed := s.cache.PruneFastTier(); removed > 0 {
		s.logger.Infof("Pruned %d expired cache entries", removed)
	}
}

func (s *MaintenanceService) pruneUsage() {
	if removed := s.monitor.Prune(); removed > 0 {
		s.logger.Infof("Pruned %d stale usage buckets", removed)
	}
}

func (s *MaintenanceService) flushUsage() {
	if err := s.monitor.Flush(); err != nil {
		s.logger.Errorf("Failed to flush usage stats: %v", err)
	}
}

// Status returns the current scheduling state.
func (s *MaintenanceService) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	return map[string]interface{}{
		"is_running": s.isRunning,
		"cron_jobs":  len(entries),
	}
}
