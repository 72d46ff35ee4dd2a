// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// PostgreSQL and schema migrations.
package repo

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/limva/limva-backend/internal/domain"
)

// OpenPostgres opens a PostgreSQL database from a DSN/URL and tunes the
// connection pool. When trace is true, GORM operations are instrumented with
// OpenTelemetry spans.
func OpenPostgres(dsn string, trace bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if trace {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the managed tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.AdminSettings{},
		&domain.HomeworkSubmission{},
		&domain.GeneratedTest{},
		&domain.ChatConversation{},
		&domain.HomeworkChatContext{},
	)
}
