// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// AdminSettings model.
//
// The settings table is a singleton by convention: at most one row exists at
// a time. Reads return the most recently created row; writes replace the
// whole table content inside a transaction, so callers never observe an
// empty table between the delete and the insert.
//
// Error semantics:
//   - When no settings row exists, GetAdminSettings returns
//     gorm.ErrRecordNotFound (exported here as ErrNotFound); callers are
//     expected to substitute defaults.
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetAdminSettings returns the most recently created settings row, or
// ErrNotFound when the table is empty.
func GetAdminSettings(ctx context.Context, db *gorm.DB) (*domain.AdminSettings, error) {
	var s domain.AdminSettings
	err := db.WithContext(ctx).
		Order("created_at desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReplaceAdminSettings persists s as the only settings row: all existing rows
// are deleted and the new one inserted, in a single transaction. The row gets
// a fresh UUID and UTC timestamps; there is no history.
func ReplaceAdminSettings(ctx context.Context, db *gorm.DB, s *domain.AdminSettings) (*domain.AdminSettings, error) {
	now := time.Now().UTC()
	row := &domain.AdminSettings{
		ID:               uuid.NewString(),
		DeepseekEnabled:  s.DeepseekEnabled,
		Gpt5Enabled:      s.Gpt5Enabled,
		OpenRouterAPIKey: s.OpenRouterAPIKey,
		ImgBBAPIKey:      s.ImgBBAPIKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.AdminSettings{}).Error; err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}
