package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/settings"
	"github.com/router-for-me/ChannelHub/internal/upstream"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChannelSource supplies the channel list used for mapping generation,
// with each channel carrying its freshest known model list.
type ChannelSource interface {
	ChannelsWithCachedModels(ctx context.Context) ([]upstream.Channel, error)
}

// Service computes mappings and persists them as single-row snapshots.
type Service struct {
	db       *gorm.DB
	channels ChannelSource
	settings *settings.Store
	now      func() time.Time
}

// NewService constructs a mapping service.
func NewService(db *gorm.DB, channels ChannelSource, store *settings.Store) *Service {
	return &Service{
		db:       db,
		channels: channels,
		settings: store,
		now:      time.Now,
	}
}

// Generate computes a fresh mapping from the current channel list and
// replaces the stored snapshot wholesale.
func (s *Service) Generate(ctx context.Context, trigger string) (*Result, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("mapping: nil service")
	}
	if s.channels == nil {
		return nil, fmt.Errorf("mapping: upstream not configured")
	}
	channels, errChannels := s.channels.ChannelsWithCachedModels(ctx)
	if errChannels != nil {
		return nil, fmt.Errorf("mapping: list channels: %w", errChannels)
	}

	cfg := settings.LoadSyncConfig(s.settings)
	coeffs := Coefficients{
		Priority:  cfg.PriorityWeight,
		Weight:    cfg.WeightWeight,
		UsedQuota: cfg.UsedQuotaWeight,
	}
	result, errCompute := Compute(channels, coeffs, trigger, s.now().UTC())
	if errCompute != nil {
		return nil, errCompute
	}

	if errSave := s.saveSnapshot(ctx, result); errSave != nil {
		return nil, errSave
	}
	log.Infof("mapping generated: trigger=%s channels=%d entries=%d",
		trigger, result.Metadata.ChannelCount, result.Metadata.MappingCount)
	return result, nil
}

// Current returns the stored mapping, or nil when none has been generated.
func (s *Service) Current(ctx context.Context) (*Result, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("mapping: nil service")
	}
	var row models.ModelMappingSnapshot
	if errFind := s.db.WithContext(ctx).Order("id DESC").First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("mapping: load snapshot: %w", errFind)
	}

	result := &Result{
		UpdatedAt: row.UpdatedAt,
		Metadata: Metadata{
			Trigger:      row.Trigger,
			GeneratedAt:  row.GeneratedAt,
			ChannelCount: row.ChannelCount,
			MappingCount: row.MappingCount,
		},
	}
	if errDecode := json.Unmarshal(row.Mapping, &result.Mapping); errDecode != nil {
		return nil, fmt.Errorf("mapping: decode snapshot: %w", errDecode)
	}
	return result, nil
}

// Clear removes the stored mapping snapshot.
func (s *Service) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("mapping: nil service")
	}
	if errDelete := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.ModelMappingSnapshot{}).Error; errDelete != nil {
		return fmt.Errorf("mapping: clear snapshot: %w", errDelete)
	}
	return nil
}

// StandardModelSuggestions returns the sorted raw model names across the
// enabled channels for autocomplete. A missing upstream configuration is
// not an error here; it logs a warning and yields an empty list.
func (s *Service) StandardModelSuggestions(ctx context.Context) ([]string, error) {
	if s == nil || s.channels == nil {
		log.Warn("mapping: suggestions requested without upstream configured")
		return []string{}, nil
	}
	channels, errChannels := s.channels.ChannelsWithCachedModels(ctx)
	if errChannels != nil {
		log.WithError(errChannels).Warn("mapping: suggestions channel listing failed")
		return []string{}, nil
	}
	return Suggestions(channels), nil
}

// saveSnapshot replaces the stored snapshot in one transaction so readers
// never observe a partially written mapping.
func (s *Service) saveSnapshot(ctx context.Context, result *Result) error {
	payload, errMarshal := json.Marshal(result.Mapping)
	if errMarshal != nil {
		return fmt.Errorf("mapping: marshal snapshot: %w", errMarshal)
	}
	row := models.ModelMappingSnapshot{
		Trigger:      result.Metadata.Trigger,
		Mapping:      datatypes.JSON(payload),
		ChannelCount: result.Metadata.ChannelCount,
		MappingCount: result.Metadata.MappingCount,
		GeneratedAt:  result.Metadata.GeneratedAt,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("1 = 1").Delete(&models.ModelMappingSnapshot{}).Error; errDelete != nil {
			return fmt.Errorf("mapping: drop previous snapshot: %w", errDelete)
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("mapping: save snapshot: %w", errCreate)
		}
		return nil
	})
}
