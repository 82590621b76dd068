// Package scheduler drives periodic channel syncs off one named alarm and
// tracks the progress of whichever run is currently in flight.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/router-for-me/ChannelHub/internal/channelsync"
	"github.com/router-for-me/ChannelHub/internal/settings"
	log "github.com/sirupsen/logrus"
)

// ErrRunInProgress is returned when a manual trigger races an active run.
var ErrRunInProgress = errors.New("scheduler: sync already running")

// State is the scheduler's position in its alarm lifecycle.
type State string

const (
	// StateDisabled means no alarm is registered.
	StateDisabled State = "disabled"
	// StateScheduled means the alarm is registered and no run is active.
	StateScheduled State = "scheduled"
	// StateRunning means one sync run is in flight.
	StateRunning State = "running"
)

// Alarm is the periodic timer primitive. Start replaces any previous
// registration; Stop is idempotent.
type Alarm interface {
	Start(period time.Duration, fire func())
	Stop()
}

// SyncRunner is the slice of the sync service the scheduler drives.
type SyncRunner interface {
	ExecuteSync(ctx context.Context, channelIDs []int64, trigger string, onProgress channelsync.ProgressFunc) (*channelsync.ExecutionResult, error)
	ExecuteFailedOnly(ctx context.Context, onProgress channelsync.ProgressFunc) (*channelsync.ExecutionResult, error)
}

// ExecutionProgress is the live view of the in-flight run. It exists only
// while a run is active.
type ExecutionProgress struct {
	IsRunning      bool                    `json:"is_running"`
	Total          int                     `json:"total"`
	Completed      int                     `json:"completed"`
	Failed         int                     `json:"failed"`
	CurrentChannel string                  `json:"current_channel,omitempty"`
	LastResult     *channelsync.ItemRecord `json:"last_result,omitempty"`
}

// Observer receives a progress snapshot after every completed item and a
// final nil when the run ends.
type Observer func(*ExecutionProgress)

// Scheduler serializes sync runs. An alarm fire during a running sync is
// coalesced, never queued.
type Scheduler struct {
	runner   SyncRunner
	settings *settings.Store
	alarm    Alarm

	mu           sync.Mutex
	state        State
	progress     *ExecutionProgress
	cancel       context.CancelFunc
	observers    map[int]Observer
	nextObserver int
}

// New constructs a scheduler. A nil alarm disables automatic runs; manual
// triggers still work.
func New(runner SyncRunner, store *settings.Store, alarm Alarm) *Scheduler {
	return &Scheduler{
		runner:    runner,
		settings:  store,
		alarm:     alarm,
		state:     StateDisabled,
		observers: make(map[int]Observer),
	}
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns a snapshot of the in-flight run, or nil when idle.
func (s *Scheduler) Progress() *ExecutionProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return nil
	}
	snapshot := *s.progress
	return &snapshot
}

// Subscribe registers an observer and returns its removal func.
func (s *Scheduler) Subscribe(observer Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = observer
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// SetupAlarm recomputes the alarm registration from persisted settings.
func (s *Scheduler) SetupAlarm() {
	cfg := settings.LoadSyncConfig(s.settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alarm == nil {
		if cfg.Enabled {
			log.Warn("scheduler: no alarm available, automatic sync stays off")
		}
		if s.state != StateRunning {
			s.state = StateDisabled
		}
		return
	}
	if !cfg.Enabled {
		s.alarm.Stop()
		if s.state != StateRunning {
			s.state = StateDisabled
		}
		return
	}

	minutes := cfg.IntervalMS / 60000
	if minutes < 1 {
		minutes = 1
	}
	s.alarm.Start(time.Duration(minutes)*time.Minute, s.onAlarm)
	if s.state != StateRunning {
		s.state = StateScheduled
	}
	log.Infof("scheduler: automatic sync every %dm", minutes)
}

// UpdateSettings merges the patch into persisted settings and re-registers
// the alarm to match.
func (s *Scheduler) UpdateSettings(ctx context.Context, patch settings.SyncConfigPatch) (settings.SyncConfig, error) {
	merged, errSave := settings.SaveSyncConfig(ctx, s.settings, patch)
	if errSave != nil {
		return settings.SyncConfig{}, errSave
	}
	s.SetupAlarm()
	return merged, nil
}

// TriggerManual runs one sync now. Errors surface to the caller, and the
// caller's context aborts the run; in-flight items finish naturally.
func (s *Scheduler) TriggerManual(ctx context.Context, channelIDs []int64) (*channelsync.ExecutionResult, error) {
	return s.run(ctx, func(runCtx context.Context, onProgress channelsync.ProgressFunc) (*channelsync.ExecutionResult, error) {
		return s.runner.ExecuteSync(runCtx, channelIDs, channelsync.TriggerManual, onProgress)
	})
}

// TriggerFailedOnly re-runs only the channels that failed last time.
func (s *Scheduler) TriggerFailedOnly(ctx context.Context) (*channelsync.ExecutionResult, error) {
	return s.run(ctx, func(runCtx context.Context, onProgress channelsync.ProgressFunc) (*channelsync.ExecutionResult, error) {
		return s.runner.ExecuteFailedOnly(runCtx, onProgress)
	})
}

// Abort cancels the in-flight run, if any. Started item operations are
// allowed to finish.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// onAlarm is the timer-driven path. A fire while running is dropped, and
// run errors are logged rather than propagated so one failure never stops
// the schedule.
func (s *Scheduler) onAlarm() {
	_, errRun := s.run(context.Background(), func(runCtx context.Context, onProgress channelsync.ProgressFunc) (*channelsync.ExecutionResult, error) {
		return s.runner.ExecuteSync(runCtx, nil, channelsync.TriggerAuto, onProgress)
	})
	if errRun != nil && !errors.Is(errRun, ErrRunInProgress) {
		log.WithError(errRun).Warn("scheduler: automatic sync failed")
	}
}

func (s *Scheduler) run(ctx context.Context, operation func(context.Context, channelsync.ProgressFunc) (*channelsync.ExecutionResult, error)) (*channelsync.ExecutionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	if !s.begin(cancel) {
		cancel()
		return nil, ErrRunInProgress
	}
	defer s.finish()

	result, errRun := operation(runCtx, s.onItemProgress)
	cancel()
	return result, errRun
}

// begin transitions to Running; it fails when a run is already active.
func (s *Scheduler) begin(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return false
	}
	s.state = StateRunning
	s.cancel = cancel
	s.progress = &ExecutionProgress{IsRunning: true}
	return true
}

// finish clears progress (broadcasting the final nil) and falls back to
// Scheduled or Disabled depending on the current settings.
func (s *Scheduler) finish() {
	cfg := settings.LoadSyncConfig(s.settings)

	s.mu.Lock()
	s.progress = nil
	s.cancel = nil
	if cfg.Enabled && s.alarm != nil {
		s.state = StateScheduled
	} else {
		s.state = StateDisabled
	}
	observers := s.snapshotObserversLocked()
	s.mu.Unlock()

	for _, observer := range observers {
		observer(nil)
	}
}

func (s *Scheduler) onItemProgress(completed, total int, last channelsync.ItemRecord) {
	s.mu.Lock()
	if s.progress == nil {
		s.mu.Unlock()
		return
	}
	s.progress.Total = total
	s.progress.Completed = completed
	s.progress.CurrentChannel = last.ChannelName
	s.progress.LastResult = &last
	if !last.OK {
		s.progress.Failed++
	}
	snapshot := *s.progress
	observers := s.snapshotObserversLocked()
	s.mu.Unlock()

	for _, observer := range observers {
		observer(&snapshot)
	}
}

func (s *Scheduler) snapshotObserversLocked() []Observer {
	observers := make([]Observer, 0, len(s.observers))
	for _, observer := range s.observers {
		observers = append(observers, observer)
	}
	return observers
}
