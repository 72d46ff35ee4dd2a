// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// GeneratedTest model. Tests are written once, with questions and answers
// together, and never mutated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
)

// NewTestParams carries everything needed to persist one generated test.
type NewTestParams struct {
	Subject       string
	Difficulty    string
	QuestionType  string
	QuestionCount int
	Requirements  string
	Questions     datatypes.JSON
	Answers       datatypes.JSON
}

// CreateTest inserts a fully-populated GeneratedTest in one statement, so no
// partial-test state is ever observable.
func CreateTest(ctx context.Context, db *gorm.DB, p NewTestParams) (*domain.GeneratedTest, error) {
	t := &domain.GeneratedTest{
		ID:            uuid.NewString(),
		Subject:       p.Subject,
		Difficulty:    p.Difficulty,
		QuestionType:  p.QuestionType,
		QuestionCount: p.QuestionCount,
		Requirements:  p.Requirements,
		Questions:     p.Questions,
		Answers:       p.Answers,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTest fetches a generated test by id, or ErrNotFound.
func GetTest(ctx context.Context, db *gorm.DB, id string) (*domain.GeneratedTest, error) {
	var t domain.GeneratedTest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTestsPage returns one page of generated tests, newest first. An empty
// subject matches all subjects.
func ListTestsPage(ctx context.Context, db *gorm.DB, subject string, offset, limit int) ([]domain.GeneratedTest, error) {
	q := db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var out []domain.GeneratedTest
	err := q.Find(&out).Error
	return out, err
}

// CountTests returns the number of generated tests, optionally filtered by
// subject.
func CountTests(ctx context.Context, db *gorm.DB, subject string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.GeneratedTest{})
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
