// Package db opens the backing database: MySQL when a DSN is
// configured, a local SQLite file otherwise.
package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/config"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/upload"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN != "" {
		return gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
}

// Migrate creates or updates the schema for every model the service
// persists.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&conversation.Conversation{},
		&conversation.Message{},
		&conversation.Job{},
		&upload.File{},
	)
}
