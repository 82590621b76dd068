// Package channelsync orchestrates rate-limited, retrying batch fetches of
// every channel's live model list.
package channelsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/ChannelHub/internal/batch"
	"github.com/router-for-me/ChannelHub/internal/ratelimit"
	"github.com/router-for-me/ChannelHub/internal/settings"
	"github.com/router-for-me/ChannelHub/internal/upstream"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Trigger sources recorded on executions.
const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

var (
	// ErrNoChannels indicates the resolved channel set was empty.
	ErrNoChannels = errors.New("channelsync: no channels to synchronize")
	// ErrNoPreviousExecution indicates retry-failed-only has nothing to read.
	ErrNoPreviousExecution = errors.New("channelsync: no previous execution")
	// ErrNoFailedChannels indicates the last execution had no failures.
	ErrNoFailedChannels = errors.New("channelsync: no failed channels to retry")
)

// ChannelAPI is the upstream surface the service depends on.
type ChannelAPI interface {
	ListChannels(ctx context.Context) (upstream.ChannelList, error)
	FetchChannelModels(ctx context.Context, channelID int64) ([]string, error)
}

// ItemRecord is the terminal outcome for one channel in a batch.
type ItemRecord struct {
	ChannelID   int64     `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	OK          bool      `json:"ok"`
	Message     string    `json:"message,omitempty"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Attempts    int       `json:"attempts"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Statistics aggregates a batch.
type Statistics struct {
	Total        int `json:"total"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// ExecutionResult is the recorded output of one sync batch.
type ExecutionResult struct {
	RunID      string       `json:"run_id"`
	Trigger    string       `json:"trigger"`
	Items      []ItemRecord `json:"items"`
	Statistics Statistics   `json:"statistics"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// ProgressFunc receives per-channel terminal outcomes while a batch runs.
type ProgressFunc func(completed, total int, last ItemRecord)

// Service fetches live model lists for channels and records the outcome.
type Service struct {
	db       *gorm.DB
	client   ChannelAPI
	settings *settings.Store
	now      func() time.Time

	bucketMu    sync.Mutex
	bucket      *ratelimit.Bucket
	bucketRPM   int
	bucketBurst int
}

// NewService constructs a channel sync service.
func NewService(db *gorm.DB, client ChannelAPI, store *settings.Store) *Service {
	return &Service{
		db:       db,
		client:   client,
		settings: store,
		now:      time.Now,
	}
}

// ListChannels delegates to the upstream collaborator. Transport failures
// are wrapped, not retried; retries belong to the per-channel batch.
func (s *Service) ListChannels(ctx context.Context) (upstream.ChannelList, error) {
	if s == nil || s.client == nil {
		return upstream.ChannelList{}, upstream.ErrNotConfigured
	}
	list, errList := s.client.ListChannels(ctx)
	if errList != nil {
		return upstream.ChannelList{}, fmt.Errorf("channelsync: list channels: %w", errList)
	}
	return list, nil
}

// FetchChannelModels fetches one channel's advertised models, gated by one
// token from the shared rate limit.
func (s *Service) FetchChannelModels(ctx context.Context, channelID int64) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, upstream.ErrNotConfigured
	}
	bucket := s.bucketFor(settings.LoadSyncConfig(s.settings))
	if errAcquire := bucket.Acquire(ctx); errAcquire != nil {
		return nil, errAcquire
	}
	models, errFetch := s.client.FetchChannelModels(ctx, channelID)
	if errFetch != nil {
		return nil, fmt.Errorf("channelsync: fetch models for channel %d: %w", channelID, errFetch)
	}
	return models, nil
}

// bucketFor returns the shared token bucket, rebuilding it only when the
// configured rate changes so sustained limits survive across runs.
func (s *Service) bucketFor(cfg settings.SyncConfig) *ratelimit.Bucket {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucket == nil || s.bucketRPM != cfg.RequestsPerMinute || s.bucketBurst != cfg.Burst {
		s.bucket = ratelimit.NewBucket(cfg.RequestsPerMinute, cfg.Burst)
		s.bucketRPM = cfg.RequestsPerMinute
		s.bucketBurst = cfg.Burst
	}
	return s.bucket
}

// ExecuteSync fetches fresh model lists for the resolved channel set and
// persists the execution. channelIDs nil or empty means every channel.
// Per-channel failures are recorded in the result, never returned as an
// error; only an empty channel set or a failed listing is fatal.
func (s *Service) ExecuteSync(ctx context.Context, channelIDs []int64, trigger string, onProgress ProgressFunc) (*ExecutionResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("channelsync: nil service")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if trigger == "" {
		trigger = TriggerManual
	}

	list, errList := s.ListChannels(ctx)
	if errList != nil {
		return nil, errList
	}
	channels := resolveChannels(list.Items, channelIDs)
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	// Settings are read per run so changes apply without a restart.
	cfg := settings.LoadSyncConfig(s.settings)
	bucket := s.bucketFor(cfg)

	startedAt := s.now().UTC()
	fetched := make([][]string, len(channels))
	var fetchedMu sync.Mutex

	summary := batch.Run(ctx, len(channels), func(ctx context.Context, index int) error {
		if errAcquire := bucket.Acquire(ctx); errAcquire != nil {
			return errAcquire
		}
		models, errFetch := s.client.FetchChannelModels(ctx, channels[index].ID)
		if errFetch != nil {
			return errFetch
		}
		fetchedMu.Lock()
		fetched[index] = models
		fetchedMu.Unlock()
		return nil
	}, batch.Options{
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		Now:         s.now,
		OnProgress: func(p batch.Progress) {
			if onProgress == nil {
				return
			}
			onProgress(p.Completed, len(channels), itemRecord(channels[p.LastResult.Index], p.LastResult))
		},
	})

	result := &ExecutionResult{
		RunID:      uuid.NewString(),
		Trigger:    trigger,
		Items:      make([]ItemRecord, 0, len(summary.Results)),
		StartedAt:  startedAt,
		FinishedAt: s.now().UTC(),
	}
	for _, itemResult := range summary.Results {
		result.Items = append(result.Items, itemRecord(channels[itemResult.Index], itemResult))
	}
	result.Statistics = Statistics{
		Total:        summary.Statistics.Total,
		SuccessCount: summary.Statistics.SuccessCount,
		FailureCount: summary.Statistics.FailureCount,
	}

	if errStore := s.storeModelLists(ctx, channels, fetched, result.Items); errStore != nil {
		log.WithError(errStore).Warn("channelsync: persist cached model lists failed")
	}
	if errSave := s.saveExecution(ctx, result); errSave != nil {
		log.WithError(errSave).Warn("channelsync: persist execution failed")
	}

	log.Infof("channelsync: run %s finished (total=%d ok=%d failed=%d)",
		result.RunID, result.Statistics.Total, result.Statistics.SuccessCount, result.Statistics.FailureCount)
	return result, nil
}

// ExecuteFailedOnly re-runs the sync for exactly the channels whose last
// recorded outcome was a failure.
func (s *Service) ExecuteFailedOnly(ctx context.Context, onProgress ProgressFunc) (*ExecutionResult, error) {
	last, errLast := s.LastExecution(ctx)
	if errLast != nil {
		return nil, errLast
	}
	if last == nil {
		return nil, ErrNoPreviousExecution
	}

	var failedIDs []int64
	for _, item := range last.Items {
		if !item.OK {
			failedIDs = append(failedIDs, item.ChannelID)
		}
	}
	if len(failedIDs) == 0 {
		return nil, ErrNoFailedChannels
	}
	return s.ExecuteSync(ctx, failedIDs, TriggerManual, onProgress)
}

// resolveChannels filters the listing to the requested IDs, or returns all
// channels when no filter is given.
func resolveChannels(items []upstream.Channel, channelIDs []int64) []upstream.Channel {
	if len(channelIDs) == 0 {
		return items
	}
	wanted := make(map[int64]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		wanted[id] = struct{}{}
	}
	resolved := make([]upstream.Channel, 0, len(channelIDs))
	for _, item := range items {
		if _, ok := wanted[item.ID]; ok {
			resolved = append(resolved, item)
		}
	}
	return resolved
}

func itemRecord(channel upstream.Channel, itemResult batch.ItemResult) ItemRecord {
	record := ItemRecord{
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		OK:          itemResult.OK,
		Attempts:    itemResult.Attempts,
		FinishedAt:  itemResult.FinishedAt.UTC(),
	}
	if itemResult.Err != nil {
		record.Message = itemResult.Err.Error()
		record.HTTPStatus = upstream.HTTPStatus(itemResult.Err)
	}
	return record
}
