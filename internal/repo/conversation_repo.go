// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatConversation model. Conversations start empty; updates rewrite the
// whole message list rather than appending rows.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
)

// CreateConversation inserts a new conversation with an empty message list.
func CreateConversation(ctx context.Context, db *gorm.DB) (*domain.ChatConversation, error) {
	now := time.Now().UTC()
	c := &domain.ChatConversation{
		ID:        uuid.NewString(),
		Messages:  datatypes.JSON("[]"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ReplaceConversationMessages overwrites the full message list of the
// conversation identified by id and returns the updated row. Returns
// ErrNotFound when the conversation does not exist.
func ReplaceConversationMessages(ctx context.Context, db *gorm.DB, id string, messages []domain.ChatMessage) (*domain.ChatConversation, error) {
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}
	res := db.WithContext(ctx).
		Model(&domain.ChatConversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"messages":   datatypes.JSON(encoded),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetConversation(ctx, db, id)
}

// GetConversation fetches a conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.ChatConversation, error) {
	var c domain.ChatConversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsPage returns one page of conversations, most recently
// updated first.
func ListConversationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChatConversation, error) {
	var out []domain.ChatConversation
	err := db.WithContext(ctx).
		Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountConversations returns the total number of stored conversations.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.ChatConversation{}).Count(&n).Error
	return n, err
}
