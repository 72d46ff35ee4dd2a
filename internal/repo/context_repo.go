// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// HomeworkChatContext model, the append-only Q&A log that gives the AI
// memory across follow-up questions.
//
// AppendContextQuestion is a read-modify-write: the current log is loaded,
// the new entry appended, and the full array written back. The whole cycle
// runs inside one transaction; the service layer additionally serializes
// appends per homework id so two concurrent follow-ups cannot drop entries.
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

// CreateContext inserts the follow-up context for one homework submission
// with an empty question log. The unique index on homework_id makes a second
// create for the same submission fail instead of producing ambiguous rows.
func CreateContext(ctx context.Context, db *gorm.DB, homeworkID, subject, content string, analysis datatypes.JSON) (*domain.HomeworkChatContext, error) {
	now := time.Now().UTC()
	c := &domain.HomeworkChatContext{
		ID:              uuid.NewString(),
		HomeworkID:      homeworkID,
		Subject:         subject,
		HomeworkContent: content,
		Analysis:        analysis,
		Questions:       datatypes.JSON("[]"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetContextByHomeworkID fetches the context for a homework submission, or
// ErrNotFound.
func GetContextByHomeworkID(ctx context.Context, db *gorm.DB, homeworkID string) (*domain.HomeworkChatContext, error) {
	var c domain.HomeworkChatContext
	err := db.WithContext(ctx).Where("homework_id = ?", homeworkID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AppendContextQuestion loads the context for homeworkID, appends one
// answered question stamped with the current UTC time, and writes the full
// log back, all in one transaction. Returns the updated context, or
// ErrNotFound when no context exists for the submission.
func AppendContextQuestion(ctx context.Context, db *gorm.DB, homeworkID, question, answer string) (*domain.HomeworkChatContext, error) {
	var out *domain.HomeworkChatContext
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.HomeworkChatContext
		if err := tx.Where("homework_id = ?", homeworkID).First(&c).Error; err != nil {
			return err
		}

		entries, err := c.DecodeQuestions()
		if err != nil {
			return err
		}
		entries = append(entries, domain.ContextEntry{
			Question:  question,
			Answer:    answer,
			Timestamp: time.Now().UTC().Format(domain.TimeLayout),
		})
		encoded, err := json.Marshal(entries)
		if err != nil {
			return err
		}

		res := tx.Model(&domain.HomeworkChatContext{}).
			Where("homework_id = ?", homeworkID).
			Updates(map[string]any{
				"questions":  datatypes.JSON(encoded),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}

		c.Questions = datatypes.JSON(encoded)
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
