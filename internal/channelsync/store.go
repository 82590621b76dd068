package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/upstream"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// executionHistoryLimit bounds how many executions are kept.
const executionHistoryLimit = 20

// storeModelLists upserts cached model lists for every channel in the
// batch. A failed fetch updates only the status columns so the previously
// cached model list survives as the fallback.
func (s *Service) storeModelLists(ctx context.Context, channels []upstream.Channel, fetched [][]string, items []ItemRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("channelsync: nil db")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range items {
			row := models.ChannelModelList{
				ChannelID:   item.ChannelID,
				ChannelName: item.ChannelName,
				OK:          item.OK,
				LastError:   item.Message,
				HTTPStatus:  item.HTTPStatus,
				Attempts:    item.Attempts,
				FetchedAt:   item.FinishedAt,
			}
			assignments := []string{"channel_name", "ok", "last_error", "http_status", "attempts", "fetched_at", "updated_at"}
			if item.OK {
				payload, errMarshal := json.Marshal(fetched[i])
				if errMarshal != nil {
					return fmt.Errorf("channelsync: marshal models for channel %d: %w", item.ChannelID, errMarshal)
				}
				row.Models = datatypes.JSON(payload)
				assignments = append(assignments, "models")
			}
			if errUpsert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "channel_id"}},
				DoUpdates: clause.AssignmentColumns(assignments),
			}).Create(&row).Error; errUpsert != nil {
				return fmt.Errorf("channelsync: upsert model list for channel %d: %w", item.ChannelID, errUpsert)
			}
		}
		return nil
	})
}

// CachedModels returns the cached model list rows keyed by channel ID.
func (s *Service) CachedModels(ctx context.Context) (map[int64]models.ChannelModelList, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("channelsync: nil db")
	}
	var rows []models.ChannelModelList
	if errFind := s.db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("channelsync: load cached model lists: %w", errFind)
	}
	cached := make(map[int64]models.ChannelModelList, len(rows))
	for _, row := range rows {
		cached[row.ChannelID] = row
	}
	return cached, nil
}

// ChannelsWithCachedModels lists upstream channels and overlays the cached
// model lists from the last sync. Channels without a cache row keep the
// model list from the listing itself.
func (s *Service) ChannelsWithCachedModels(ctx context.Context) ([]upstream.Channel, error) {
	list, errList := s.ListChannels(ctx)
	if errList != nil {
		return nil, errList
	}
	cached, errCached := s.CachedModels(ctx)
	if errCached != nil {
		return nil, errCached
	}

	channels := make([]upstream.Channel, 0, len(list.Items))
	for _, channel := range list.Items {
		if row, ok := cached[channel.ID]; ok && len(row.Models) > 0 {
			var cachedModels []string
			if errDecode := json.Unmarshal(row.Models, &cachedModels); errDecode == nil && len(cachedModels) > 0 {
				channel.Models = cachedModels
			}
		}
		channels = append(channels, channel)
	}
	return channels, nil
}

// saveExecution appends the execution and prunes history beyond the limit.
func (s *Service) saveExecution(ctx context.Context, result *ExecutionResult) error {
	if s == nil || s.db == nil || result == nil {
		return fmt.Errorf("channelsync: nil execution")
	}
	payload, errMarshal := json.Marshal(result.Items)
	if errMarshal != nil {
		return fmt.Errorf("channelsync: marshal execution items: %w", errMarshal)
	}

	row := models.SyncExecution{
		RunID:        result.RunID,
		Trigger:      result.Trigger,
		Items:        datatypes.JSON(payload),
		Total:        result.Statistics.Total,
		SuccessCount: result.Statistics.SuccessCount,
		FailureCount: result.Statistics.FailureCount,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("channelsync: save execution: %w", errCreate)
		}
		var staleIDs []uint64
		if errFind := tx.Model(&models.SyncExecution{}).
			Order("id DESC").
			Offset(executionHistoryLimit).
			Pluck("id", &staleIDs).Error; errFind != nil {
			return fmt.Errorf("channelsync: find stale executions: %w", errFind)
		}
		if len(staleIDs) > 0 {
			if errPrune := tx.Where("id IN ?", staleIDs).Delete(&models.SyncExecution{}).Error; errPrune != nil {
				return fmt.Errorf("channelsync: prune executions: %w", errPrune)
			}
		}
		return nil
	})
}

// LastExecution returns the most recent execution, or nil when none exists.
func (s *Service) LastExecution(ctx context.Context) (*ExecutionResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("channelsync: nil db")
	}
	var row models.SyncExecution
	if errFind := s.db.WithContext(ctx).Order("id DESC").First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("channelsync: load last execution: %w", errFind)
	}

	result := &ExecutionResult{
		RunID:   row.RunID,
		Trigger: row.Trigger,
		Statistics: Statistics{
			Total:        row.Total,
			SuccessCount: row.SuccessCount,
			FailureCount: row.FailureCount,
		},
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if errDecode := json.Unmarshal(row.Items, &result.Items); errDecode != nil {
		return nil, fmt.Errorf("channelsync: decode execution items: %w", errDecode)
	}
	return result, nil
}

// ClearExecutions drops the execution history.
func (s *Service) ClearExecutions(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("channelsync: nil db")
	}
	if errDelete := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.SyncExecution{}).Error; errDelete != nil {
		return fmt.Errorf("channelsync: clear executions: %w", errDelete)
	}
	return nil
}
