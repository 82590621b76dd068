package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/ChannelHub/internal/db"
	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Environment variables for first-run admin seeding.
const (
	EnvAdminUsername = "ADMIN_USERNAME"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "channelhub.db"

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_foreign_keys=on",
		"_synchronous=NORMAL",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		err = sqlDB.Close()
		if err != nil {
			log.Errorf("sql db close error: %v", err)
		}
	}()
	return sqlDB.Ping()
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string      `yaml:"host"`
	Port        int         `yaml:"port"`
	DatabaseDSN string      `yaml:"database-dsn"`
	Debug       bool        `yaml:"debug"`
	JWT         jwtCfg      `yaml:"jwt"`
	Upstream    upstreamCfg `yaml:"upstream"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// upstreamCfg holds upstream channel API settings for the generated config
// file.
type upstreamCfg struct {
	BaseURL string `yaml:"base-url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int) error {
	cfg := configFile{
		Host:        "",
		Port:        port,
		DatabaseDSN: dsn,
		Debug:       false,
		JWT: jwtCfg{
			Secret: generateJWTSecret(),
			Expiry: "720h",
		},
		Upstream: upstreamCfg{
			Timeout: "15s",
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// EnsureConfig writes a default SQLite-backed config when none exists, so
// a bare binary comes up without hand-written YAML.
func EnsureConfig(configPath string, port int) error {
	if ConfigExists(configPath) {
		return nil
	}
	dsn := buildSQLiteDSN(defaultSQLitePath)
	if errTest := TestDatabaseConnection(dsn); errTest != nil {
		return errTest
	}
	if errWrite := WriteConfigFile(configPath, dsn, port); errWrite != nil {
		return errWrite
	}
	log.Infof("wrote default config to %s (sqlite database %s)", configPath, defaultSQLitePath)
	return nil
}

// CreateAdminUserWithConn creates an admin account over an open connection.
func CreateAdminUserWithConn(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	admin := models.Admin{
		Username: username,
		Password: hashedPassword,
		Active:   true,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return fmt.Errorf("create admin: username %q already exists", username)
		}
		return fmt.Errorf("create admin: %w", errCreate)
	}
	return nil
}

// adminAccountExists reports whether at least one admin row is present.
// A missing admins table means "not yet", not an error, so the check is
// safe to run before migration.
func adminAccountExists(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("open database: nil connection")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var found []uint64
	if errFind := conn.Model(&models.Admin{}).Limit(1).Pluck("id", &found).Error; errFind != nil {
		return false, fmt.Errorf("count admins: %w", errFind)
	}
	return len(found) > 0, nil
}

// EnsureAdminFromEnv seeds the first admin account from ADMIN_USERNAME and
// ADMIN_PASSWORD when no admin exists yet. Missing variables on an empty
// admins table are an error: the server would be unreachable.
func EnsureAdminFromEnv(conn *gorm.DB) error {
	initialized, errInit := adminAccountExists(conn)
	if errInit != nil {
		return errInit
	}
	if initialized {
		return nil
	}

	username := strings.TrimSpace(os.Getenv(EnvAdminUsername))
	password := os.Getenv(EnvAdminPassword)
	if username == "" || password == "" {
		return fmt.Errorf("no admin account exists; set %s and %s for first-run setup", EnvAdminUsername, EnvAdminPassword)
	}
	if len(password) < 6 {
		return fmt.Errorf("admin password must be at least 6 characters")
	}

	if errCreate := CreateAdminUserWithConn(conn, username, password); errCreate != nil {
		return errCreate
	}
	log.Infof("seeded initial admin account %q", username)
	return nil
}
