package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/syncer"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	running atomic.Int32
	block   chan struct{} // when set, runs block until closed
}

func (f *fakeRunner) SyncAllProviders(ctx context.Context, opts syncer.Options) (*syncer.Summary, error) {
	f.running.Add(1)
	defer f.running.Add(-1)

	f.mu.Lock()
	f.calls = append(f.calls, opts.SyncType)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &syncer.Summary{SyncType: opts.SyncType}, nil
}

func (f *fakeRunner) callCount(syncType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call == syncType {
			count++
		}
	}
	return count
}

func newTestScheduler(t *testing.T, runner SyncRunner) *Scheduler {
	t.Helper()
	cm := utils.NewConfigManager("")
	logger := utils.NewLogsManager(cm)
	t.Cleanup(func() { logger.Close() })

	s := NewScheduler(context.Background(), runner, cm, logger)
	t.Cleanup(s.Stop)
	return s
}

func TestTriggerSyncRunsSynchronously(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)

	summary, err := s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeExecutions})
	if err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	if summary.SyncType != syncer.SyncTypeExecutions {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if runner.callCount(syncer.SyncTypeExecutions) != 1 {
		t.Errorf("Expected 1 run, got %d", runner.callCount(syncer.SyncTypeExecutions))
	}
}

func TestTriggerSyncRefusesOverlap(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := newTestScheduler(t, runner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeExecutions})
	}()

	// Wait for the first run to be holding the guard
	deadline := time.After(2 * time.Second)
	for runner.running.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("First run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeExecutions})
	if !errors.Is(err, syncer.ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress, got %v", err)
	}

	// A different sync type is unaffected
	runner.mu.Lock()
	blocked := runner.block
	runner.block = nil
	runner.mu.Unlock()
	if _, err := s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeWorkflows}); err != nil {
		t.Errorf("Expected workflows sync to proceed, got %v", err)
	}

	close(blocked)
	<-done
}

func TestFullSyncBlocksComponentTypes(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := newTestScheduler(t, runner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeFull})
	}()

	deadline := time.After(2 * time.Second)
	for runner.running.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Full sync never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeExecutions}); !errors.Is(err, syncer.ErrSyncInProgress) {
		t.Errorf("Expected executions blocked by full sync, got %v", err)
	}
	if _, err := s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeWorkflows}); !errors.Is(err, syncer.ErrSyncInProgress) {
		t.Errorf("Expected workflows blocked by full sync, got %v", err)
	}

	runner.mu.Lock()
	close(runner.block)
	runner.mu.Unlock()
	<-done

	if _, err := s.TriggerSync(context.Background(), syncer.Options{SyncType: syncer.SyncTypeExecutions}); err != nil {
		t.Errorf("Expected guard released after full sync, got %v", err)
	}
}

func TestStartRunsJobsImmediately(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)

	s.Start()

	deadline := time.After(2 * time.Second)
	for {
		if runner.callCount(syncer.SyncTypeExecutions) >= 1 &&
			runner.callCount(syncer.SyncTypeWorkflows) >= 1 &&
			runner.callCount(syncer.SyncTypeBackups) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected an immediate run per job, got %v", runner.calls)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)

	s.Start()
	s.Stop()
	s.Stop() // must not panic or block
}
