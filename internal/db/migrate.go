package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/router-for-me/ChannelHub/internal/models"
	internalsettings "github.com/router-for-me/ChannelHub/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to the database identified by the DSN. Postgres URLs use
// the postgres driver; anything else is treated as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") || strings.Contains(trimmed, "host=") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return conn, nil
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
		return migrate(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func migrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.Setting{},
		&models.ChannelModelList{},
		&models.SyncExecution{},
		&models.ModelMappingSnapshot{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureSyncSettings(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureSyncSettings seeds default sync preferences for missing keys.
func ensureSyncSettings(conn *gorm.DB) error {
	if errSeed := ensureBoolSetting(conn, internalsettings.SyncEnabledKey, internalsettings.DefaultSyncEnabled); errSeed != nil {
		return errSeed
	}
	intDefaults := []struct {
		key   string
		value int
	}{
		{internalsettings.SyncIntervalMSKey, internalsettings.DefaultSyncIntervalMS},
		{internalsettings.SyncConcurrencyKey, internalsettings.DefaultSyncConcurrency},
		{internalsettings.SyncMaxRetriesKey, internalsettings.DefaultSyncMaxRetries},
		{internalsettings.SyncRequestsPerMinuteKey, internalsettings.DefaultSyncRequestsPerMinute},
		{internalsettings.SyncBurstKey, internalsettings.DefaultSyncBurst},
		{internalsettings.MappingPriorityWeightKey, internalsettings.DefaultMappingPriorityWeight},
		{internalsettings.MappingWeightWeightKey, internalsettings.DefaultMappingWeightWeight},
		{internalsettings.MappingUsedQuotaWeightKey, internalsettings.DefaultMappingUsedQuotaWeight},
	}
	for _, seed := range intDefaults {
		if errSeed := ensureIntSetting(conn, seed.key, seed.value); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureRawSetting(conn, key, payload)
}

func ensureBoolSetting(conn *gorm.DB, key string, value bool) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureRawSetting(conn, key, payload)
}

func ensureRawSetting(conn *gorm.DB, key string, rawValue json.RawMessage) error {
	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      datatypes.JSON(rawValue),
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     datatypes.JSON(rawValue),
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
