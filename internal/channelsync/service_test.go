package channelsync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/settings"
	"github.com/router-for-me/ChannelHub/internal/upstream"
	"gorm.io/gorm"
)

type fakeAPI struct {
	mu       sync.Mutex
	channels []upstream.Channel
	listErr  error
	models   map[int64][]string
	fail     map[int64]error
	fetched  []int64
}

func (f *fakeAPI) ListChannels(ctx context.Context) (upstream.ChannelList, error) {
	if f.listErr != nil {
		return upstream.ChannelList{}, f.listErr
	}
	return upstream.ChannelList{Items: f.channels, Total: len(f.channels)}, nil
}

func (f *fakeAPI) FetchChannelModels(ctx context.Context, channelID int64) ([]string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, channelID)
	f.mu.Unlock()
	if errFetch, ok := f.fail[channelID]; ok {
		return nil, errFetch
	}
	return f.models[channelID], nil
}

func (f *fakeAPI) fetchedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.fetched...)
}

func newTestService(t *testing.T, api ChannelAPI) *Service {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}, &models.ChannelModelList{}, &models.SyncExecution{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	store := settings.NewStore(conn)
	// Give the per-run limiter enough headroom that tests never block on it.
	rpm := 60000
	burst := 1000
	if _, errSave := settings.SaveSyncConfig(context.Background(), store, settings.SyncConfigPatch{
		RequestsPerMinute: &rpm,
		Burst:             &burst,
	}); errSave != nil {
		t.Fatalf("save sync config: %v", errSave)
	}
	return NewService(conn, api, store)
}

func threeChannels() []upstream.Channel {
	return []upstream.Channel{
		{ID: 1, Name: "alpha", Status: upstream.ChannelStatusEnabled},
		{ID: 2, Name: "beta", Status: upstream.ChannelStatusEnabled},
		{ID: 3, Name: "gamma", Status: upstream.ChannelStatusDisabled},
	}
}

func TestExecuteSync_PartialFailure(t *testing.T) {
	api := &fakeAPI{
		channels: threeChannels(),
		models: map[int64][]string{
			1: {"gpt-4o", "gpt-4o-mini"},
			3: {"claude-3-5-sonnet"},
		},
		fail: map[int64]error{2: errors.New("upstream exploded")},
	}
	service := newTestService(t, api)

	result, errSync := service.ExecuteSync(context.Background(), nil, TriggerManual, nil)
	if errSync != nil {
		t.Fatalf("execute sync: %v", errSync)
	}
	if result.RunID == "" {
		t.Fatalf("missing run id")
	}
	if result.Statistics.Total != 3 || result.Statistics.SuccessCount != 2 || result.Statistics.FailureCount != 1 {
		t.Fatalf("unexpected statistics: %+v", result.Statistics)
	}
	for _, item := range result.Items {
		if item.ChannelID == 2 {
			if item.OK {
				t.Fatalf("channel 2 should have failed")
			}
			if item.Message == "" {
				t.Fatalf("failed item should carry the final error message")
			}
			// MaxRetries defaults to 2, so three attempts total.
			if item.Attempts != 3 {
				t.Fatalf("unexpected attempts: %d", item.Attempts)
			}
		} else if !item.OK {
			t.Fatalf("channel %d should have succeeded", item.ChannelID)
		}
	}

	last, errLast := service.LastExecution(context.Background())
	if errLast != nil {
		t.Fatalf("last execution: %v", errLast)
	}
	if last == nil || last.RunID != result.RunID {
		t.Fatalf("execution not persisted: %+v", last)
	}
}

func TestExecuteSync_SelectedChannels(t *testing.T) {
	api := &fakeAPI{
		channels: threeChannels(),
		models:   map[int64][]string{1: {"gpt-4o"}, 3: {"claude-3-5-sonnet"}},
	}
	service := newTestService(t, api)

	result, errSync := service.ExecuteSync(context.Background(), []int64{3}, TriggerManual, nil)
	if errSync != nil {
		t.Fatalf("execute sync: %v", errSync)
	}
	if result.Statistics.Total != 1 || result.Items[0].ChannelID != 3 {
		t.Fatalf("selection ignored: %+v", result)
	}
	for _, id := range api.fetchedIDs() {
		if id != 3 {
			t.Fatalf("fetched unselected channel %d", id)
		}
	}
}

func TestExecuteSync_NoMatchingChannels(t *testing.T) {
	service := newTestService(t, &fakeAPI{channels: threeChannels()})
	if _, errSync := service.ExecuteSync(context.Background(), []int64{99}, TriggerManual, nil); !errors.Is(errSync, ErrNoChannels) {
		t.Fatalf("expected ErrNoChannels, got %v", errSync)
	}
}

func TestExecuteSync_ProgressStrictlyIncreases(t *testing.T) {
	api := &fakeAPI{
		channels: threeChannels(),
		models:   map[int64][]string{1: {"a"}, 2: {"b"}, 3: {"c"}},
	}
	service := newTestService(t, api)

	var mu sync.Mutex
	var seen []int
	_, errSync := service.ExecuteSync(context.Background(), nil, TriggerAuto, func(completed, total int, last ItemRecord) {
		mu.Lock()
		seen = append(seen, completed)
		mu.Unlock()
		if total != 3 {
			t.Errorf("unexpected total: %d", total)
		}
	})
	if errSync != nil {
		t.Fatalf("execute sync: %v", errSync)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 progress callbacks, got %d", len(seen))
	}
	for i, completed := range seen {
		if completed != i+1 {
			t.Fatalf("progress not strictly increasing: %v", seen)
		}
	}
}

func TestExecuteFailedOnly(t *testing.T) {
	api := &fakeAPI{
		channels: threeChannels(),
		models:   map[int64][]string{1: {"gpt-4o"}, 3: {"claude-3-5-sonnet"}},
		fail:     map[int64]error{2: errors.New("temporarily down")},
	}
	service := newTestService(t, api)

	if _, errRetry := service.ExecuteFailedOnly(context.Background(), nil); !errors.Is(errRetry, ErrNoPreviousExecution) {
		t.Fatalf("expected ErrNoPreviousExecution, got %v", errRetry)
	}

	if _, errSync := service.ExecuteSync(context.Background(), nil, TriggerManual, nil); errSync != nil {
		t.Fatalf("execute sync: %v", errSync)
	}

	// Channel 2 recovers; the retry must touch only channel 2.
	delete(api.fail, 2)
	api.models[2] = []string{"gemini-2.0-flash"}
	api.mu.Lock()
	api.fetched = nil
	api.mu.Unlock()

	result, errRetry := service.ExecuteFailedOnly(context.Background(), nil)
	if errRetry != nil {
		t.Fatalf("execute failed only: %v", errRetry)
	}
	if result.Statistics.Total != 1 || result.Statistics.SuccessCount != 1 {
		t.Fatalf("unexpected retry statistics: %+v", result.Statistics)
	}
	for _, id := range api.fetchedIDs() {
		if id != 2 {
			t.Fatalf("retry fetched channel %d", id)
		}
	}

	if _, errRetry = service.ExecuteFailedOnly(context.Background(), nil); !errors.Is(errRetry, ErrNoFailedChannels) {
		t.Fatalf("expected ErrNoFailedChannels, got %v", errRetry)
	}
}

func TestCachedModelsSurviveFailedFetch(t *testing.T) {
	api := &fakeAPI{
		channels: threeChannels(),
		models: map[int64][]string{
			1: {"gpt-4o"},
			2: {"gemini-2.0-flash"},
			3: {"claude-3-5-sonnet"},
		},
	}
	service := newTestService(t, api)

	if _, errSync := service.ExecuteSync(context.Background(), nil, TriggerManual, nil); errSync != nil {
		t.Fatalf("first sync: %v", errSync)
	}

	// Channel 2 goes down; its cached list must survive the failed sync.
	api.fail = map[int64]error{2: errors.New("gone")}
	if _, errSync := service.ExecuteSync(context.Background(), nil, TriggerManual, nil); errSync != nil {
		t.Fatalf("second sync: %v", errSync)
	}

	cached, errCached := service.CachedModels(context.Background())
	if errCached != nil {
		t.Fatalf("cached models: %v", errCached)
	}
	row, ok := cached[2]
	if !ok {
		t.Fatalf("missing cache row for channel 2")
	}
	if row.OK {
		t.Fatalf("cache row should record the failure")
	}
	if string(row.Models) != `["gemini-2.0-flash"]` {
		t.Fatalf("cached models were overwritten: %s", row.Models)
	}

	channels, errOverlay := service.ChannelsWithCachedModels(context.Background())
	if errOverlay != nil {
		t.Fatalf("channels with cached models: %v", errOverlay)
	}
	for _, channel := range channels {
		if channel.ID == 2 && len(channel.Models) != 1 {
			t.Fatalf("overlay lost the fallback models: %+v", channel)
		}
	}
}
