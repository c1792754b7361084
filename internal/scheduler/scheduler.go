package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/syncer"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
)

// SyncRunner is the sync engine surface the scheduler drives
type SyncRunner interface {
	SyncAllProviders(ctx context.Context, opts syncer.Options) (*syncer.Summary, error)
}

type job struct {
	syncType  string
	configKey string
	defMin    int
}

var jobs = []job{
	{syncType: syncer.SyncTypeExecutions, configKey: "sync_interval_executions_min", defMin: 5},
	{syncType: syncer.SyncTypeWorkflows, configKey: "sync_interval_workflows_min", defMin: 30},
	{syncType: syncer.SyncTypeBackups, configKey: "sync_interval_backups_min", defMin: 1440},
}

// Scheduler drives periodic sync runs. One guard per sync type covers
// both scheduled and manually triggered runs, so a slow run is skipped
// over rather than stacked.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	runner SyncRunner
	cm     *utils.ConfigManager
	logger *utils.LogsManager

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu       sync.Mutex
	inflight map[string]bool
}

// NewScheduler creates the scheduler
func NewScheduler(ctx context.Context, runner SyncRunner, cm *utils.ConfigManager, logger *utils.LogsManager) *Scheduler {
	schedCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      schedCtx,
		cancel:   cancel,
		runner:   runner,
		cm:       cm,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// Start launches one ticker loop per job. Every job runs once
// immediately so a restarted node catches up without waiting a full
// interval.
func (s *Scheduler) Start() {
	for _, j := range jobs {
		interval := time.Duration(s.cm.GetConfigInt(j.configKey, j.defMin, 1, 10080)) * time.Minute

		s.wg.Add(1)
		go func(j job, interval time.Duration) {
			defer s.wg.Done()

			s.logger.Info(fmt.Sprintf("Scheduled %s sync every %s", j.syncType, interval), "scheduler")
			s.runScheduled(j.syncType)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					s.runScheduled(j.syncType)
				case <-s.ctx.Done():
					return
				}
			}
		}(j, interval)
	}
}

func (s *Scheduler) runScheduled(syncType string) {
	if !s.acquire(syncType) {
		s.logger.Warn(fmt.Sprintf("Skipping scheduled %s sync, previous run still in progress", syncType), "scheduler")
		return
	}
	defer s.release(syncType)

	if _, err := s.runner.SyncAllProviders(s.ctx, syncer.Options{SyncType: syncType}); err != nil {
		s.logger.Error(fmt.Sprintf("Scheduled %s sync failed: %v", syncType, err), "scheduler")
	}
}

// TriggerSync runs a sync of the given type right now, synchronously.
// Returns ErrSyncInProgress when the same type is already running.
func (s *Scheduler) TriggerSync(ctx context.Context, opts syncer.Options) (*syncer.Summary, error) {
	if !s.acquire(opts.SyncType) {
		return nil, syncer.ErrSyncInProgress
	}
	defer s.release(opts.SyncType)

	return s.runner.SyncAllProviders(ctx, opts)
}

// guardKeys returns the per-type guards a run must hold. A full sync
// touches both the workflow catalog and execution history, so it
// conflicts with either running separately.
func guardKeys(syncType string) []string {
	if syncType == syncer.SyncTypeFull {
		return []string{syncer.SyncTypeFull, syncer.SyncTypeWorkflows, syncer.SyncTypeExecutions}
	}
	return []string{syncType}
}

func (s *Scheduler) acquire(syncType string) bool {
	keys := guardKeys(syncType)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if s.inflight[key] {
			return false
		}
	}

	for _, key := range keys {
		s.inflight[key] = true
	}
	return true
}

func (s *Scheduler) release(syncType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range guardKeys(syncType) {
		delete(s.inflight, key)
	}
}

// Stop halts the ticker loops and waits for any in-progress scheduled
// run to finish. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Info("Scheduler stopped", "scheduler")
	})
}
