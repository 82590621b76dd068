package mapping

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/settings"
	"github.com/router-for-me/ChannelHub/internal/upstream"
	"gorm.io/gorm"
)

type staticChannels struct {
	channels []upstream.Channel
}

func (s *staticChannels) ChannelsWithCachedModels(ctx context.Context) ([]upstream.Channel, error) {
	return s.channels, nil
}

func newTestService(t *testing.T, source ChannelSource) *Service {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}, &models.ModelMappingSnapshot{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewService(conn, source, settings.NewStore(conn))
}

func TestGenerateAndCurrent(t *testing.T) {
	source := &staticChannels{channels: []upstream.Channel{
		enabled(1, "alpha", 2, 10, 5, "gpt-4o", "gpt-4o-mini"),
		enabled(2, "beta", 1, 50, 0, "gpt-4o"),
	}}
	service := newTestService(t, source)

	generated, errGenerate := service.Generate(context.Background(), "manual")
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if generated.Metadata.MappingCount == 0 || generated.Metadata.ChannelCount != 2 {
		t.Fatalf("unexpected metadata: %+v", generated.Metadata)
	}

	current, errCurrent := service.Current(context.Background())
	if errCurrent != nil {
		t.Fatalf("current: %v", errCurrent)
	}
	if current == nil {
		t.Fatalf("snapshot not persisted")
	}
	if len(current.Mapping) != len(generated.Mapping) {
		t.Fatalf("round trip lost entries: %d vs %d", len(current.Mapping), len(generated.Mapping))
	}
	if current.Mapping["gpt-4o"].TargetChannelID != 1 {
		t.Fatalf("unexpected winner after reload: %+v", current.Mapping["gpt-4o"])
	}
}

func TestGenerateReplacesSnapshot(t *testing.T) {
	source := &staticChannels{channels: []upstream.Channel{
		enabled(1, "alpha", 1, 1, 0, "gpt-4o"),
	}}
	service := newTestService(t, source)

	if _, errFirst := service.Generate(context.Background(), "manual"); errFirst != nil {
		t.Fatalf("first generate: %v", errFirst)
	}

	// Second run sees a different channel set; only the new snapshot
	// must remain.
	source.channels = []upstream.Channel{enabled(2, "beta", 1, 1, 0, "gemini-2.0-flash")}
	if _, errSecond := service.Generate(context.Background(), "auto"); errSecond != nil {
		t.Fatalf("second generate: %v", errSecond)
	}

	var count int64
	if errCount := service.db.Model(&models.ModelMappingSnapshot{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count snapshots: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected a single snapshot row, got %d", count)
	}

	current, errCurrent := service.Current(context.Background())
	if errCurrent != nil {
		t.Fatalf("current: %v", errCurrent)
	}
	if _, stale := current.Mapping["gpt-4o"]; stale {
		t.Fatalf("previous snapshot leaked through: %+v", current.Mapping)
	}
	if current.Metadata.Trigger != "auto" {
		t.Fatalf("unexpected trigger: %+v", current.Metadata)
	}
}

func TestCurrentWithoutSnapshot(t *testing.T) {
	service := newTestService(t, &staticChannels{})
	current, errCurrent := service.Current(context.Background())
	if errCurrent != nil {
		t.Fatalf("current: %v", errCurrent)
	}
	if current != nil {
		t.Fatalf("expected nil without a snapshot, got %+v", current)
	}
}

func TestClear(t *testing.T) {
	source := &staticChannels{channels: []upstream.Channel{enabled(1, "alpha", 1, 1, 0, "gpt-4o")}}
	service := newTestService(t, source)
	if _, errGenerate := service.Generate(context.Background(), "manual"); errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if errClear := service.Clear(context.Background()); errClear != nil {
		t.Fatalf("clear: %v", errClear)
	}
	current, errCurrent := service.Current(context.Background())
	if errCurrent != nil {
		t.Fatalf("current: %v", errCurrent)
	}
	if current != nil {
		t.Fatalf("snapshot survived clear: %+v", current)
	}
}

func TestSuggestionsWithoutUpstream(t *testing.T) {
	service := newTestService(t, nil)
	names, errSuggest := service.StandardModelSuggestions(context.Background())
	if errSuggest != nil {
		t.Fatalf("suggestions must not fail without upstream: %v", errSuggest)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty suggestions, got %v", names)
	}
}
