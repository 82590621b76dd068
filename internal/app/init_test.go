package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/router-for-me/ChannelHub/internal/db"
	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/security"
)

func TestAdminAccountExists(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "channelhub-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	initialized, err := adminAccountExists(conn)
	if err != nil {
		t.Fatalf("adminAccountExists: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false before migrate")
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	initialized, err = adminAccountExists(conn)
	if err != nil {
		t.Fatalf("adminAccountExists after migrate: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false with empty admins table")
	}

	if errCreate := CreateAdminUserWithConn(conn, "admin", "password"); errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}

	initialized, err = adminAccountExists(conn)
	if err != nil {
		t.Fatalf("adminAccountExists after seed: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized=true after admin created")
	}
}

func TestCreateAdminUserWithConn_HashesPassword(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "channelhub-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if errCreate := CreateAdminUserWithConn(conn, "admin", "password"); errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}

	var admin models.Admin
	if errFind := conn.First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if admin.Password == "password" {
		t.Fatalf("password stored in plain text")
	}
	if !security.CheckPassword(admin.Password, "password") {
		t.Fatalf("stored hash does not verify")
	}
	if !admin.Active {
		t.Fatalf("seeded admin should be active")
	}
}

func TestEnsureConfig_WritesDefault(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	if ConfigExists(configPath) {
		t.Fatalf("config should not exist yet")
	}
	// buildSQLiteDSN writes relative to the working directory; point it at
	// the temp dir for the duration of the test.
	oldWD, errWD := os.Getwd()
	if errWD != nil {
		t.Fatalf("getwd: %v", errWD)
	}
	if errChdir := os.Chdir(dir); errChdir != nil {
		t.Fatalf("chdir: %v", errChdir)
	}
	t.Cleanup(func() {
		if errChdir := os.Chdir(oldWD); errChdir != nil {
			t.Fatalf("restore wd: %v", errChdir)
		}
	})
	if errEnsure := EnsureConfig(configPath, 8318); errEnsure != nil {
		t.Fatalf("EnsureConfig: %v", errEnsure)
	}
	if !ConfigExists(configPath) {
		t.Fatalf("config file not written")
	}
	// Idempotent on an existing file.
	if errEnsure := EnsureConfig(configPath, 8318); errEnsure != nil {
		t.Fatalf("EnsureConfig second run: %v", errEnsure)
	}
}
