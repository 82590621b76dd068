package settings

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/router-for-me/ChannelHub/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewStore(db)
}

func TestLoadSyncConfig_Defaults(t *testing.T) {
	store := newTestStore(t)
	cfg := LoadSyncConfig(store)
	if cfg.Enabled != DefaultSyncEnabled {
		t.Fatalf("unexpected enabled default: %v", cfg.Enabled)
	}
	if cfg.Concurrency != DefaultSyncConcurrency || cfg.MaxRetries != DefaultSyncMaxRetries {
		t.Fatalf("unexpected batch defaults: %+v", cfg)
	}
	if cfg.PriorityWeight != DefaultMappingPriorityWeight || cfg.UsedQuotaWeight != DefaultMappingUsedQuotaWeight {
		t.Fatalf("unexpected coefficient defaults: %+v", cfg)
	}
}

func TestSaveSyncConfig_MergeAndPersist(t *testing.T) {
	store := newTestStore(t)

	enabled := true
	concurrency := 7
	quotaWeight := -5
	merged, errSave := SaveSyncConfig(context.Background(), store, SyncConfigPatch{
		Enabled:         &enabled,
		Concurrency:     &concurrency,
		UsedQuotaWeight: &quotaWeight,
	})
	if errSave != nil {
		t.Fatalf("save sync config: %v", errSave)
	}
	if !merged.Enabled || merged.Concurrency != 7 || merged.UsedQuotaWeight != -5 {
		t.Fatalf("merge not applied: %+v", merged)
	}
	// Untouched fields keep defaults.
	if merged.MaxRetries != DefaultSyncMaxRetries {
		t.Fatalf("untouched field changed: %+v", merged)
	}

	// A fresh load from the snapshot sees the persisted values.
	reloaded := LoadSyncConfig(store)
	if !reloaded.Enabled || reloaded.Concurrency != 7 || reloaded.UsedQuotaWeight != -5 {
		t.Fatalf("persisted config not reloaded: %+v", reloaded)
	}
}

// Setting values are bare JSON scalars; the column must hand them back as
// JSON text rather than letting the driver coerce them into integers.
func TestSettingScalarValueRoundTrip(t *testing.T) {
	store := newTestStore(t)

	for raw, key := range map[string]string{
		`1800000`: SyncIntervalMSKey,
		`-1`:      MappingUsedQuotaWeightKey,
		`true`:    SyncEnabledKey,
	} {
		if errCreate := store.db.Create(&models.Setting{Key: key, Value: datatypes.JSON(raw)}).Error; errCreate != nil {
			t.Fatalf("create %s: %v", key, errCreate)
		}
	}

	var rows []models.Setting
	if errFind := store.db.Find(&rows).Error; errFind != nil {
		t.Fatalf("find settings: %v", errFind)
	}
	got := make(map[string]string, len(rows))
	for _, row := range rows {
		got[row.Key] = string(row.Value)
	}
	if got[SyncIntervalMSKey] != `1800000` || got[MappingUsedQuotaWeightKey] != `-1` || got[SyncEnabledKey] != `true` {
		t.Fatalf("scalar values mangled: %v", got)
	}

	if errReload := store.Reload(context.Background()); errReload != nil {
		t.Fatalf("reload: %v", errReload)
	}
	cfg := LoadSyncConfig(store)
	if cfg.IntervalMS != 1800000 || cfg.UsedQuotaWeight != -1 || !cfg.Enabled {
		t.Fatalf("scalar settings not decoded: %+v", cfg)
	}
}

func TestSaveSyncConfig_RejectsInvalidValues(t *testing.T) {
	store := newTestStore(t)

	zero := 0
	negative := -3
	merged, errSave := SaveSyncConfig(context.Background(), store, SyncConfigPatch{
		Concurrency: &zero,
		MaxRetries:  &negative,
	})
	if errSave != nil {
		t.Fatalf("save sync config: %v", errSave)
	}
	if merged.Concurrency != DefaultSyncConcurrency || merged.MaxRetries != DefaultSyncMaxRetries {
		t.Fatalf("invalid values should be ignored: %+v", merged)
	}
}

func TestParseIntTolerance(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{`42`, 42, true},
		{`"42"`, 42, true},
		{`-1`, -1, true},
		{`42.0`, 42, true},
		{`42.5`, 0, false},
		{`"abc"`, 0, false},
		{``, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseInt([]byte(tc.raw))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseInt(%q) = %d, %v, want %d, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseBoolTolerance(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
		ok   bool
	}{
		{`true`, true, true},
		{`"on"`, true, true},
		{`"off"`, false, true},
		{`1`, true, true},
		{`0`, false, true},
		{`"maybe"`, false, false},
	}
	for _, tc := range cases {
		got, ok := parseBool([]byte(tc.raw))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseBool(%q) = %v, %v, want %v, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
