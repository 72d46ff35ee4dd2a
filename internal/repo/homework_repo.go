// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// HomeworkSubmission model.
//
// Functions:
//
//   - CreateSubmission(ctx, db, subject, content, imageURL) -> *domain.HomeworkSubmission, error
//     Inserts a new submission with a UUID primary key and nil analysis.
//
//   - UpdateSubmissionAnalysis(ctx, db, id, analysis) -> error
//     Attaches the AI analysis to an existing submission. Returns ErrNotFound
//     when the id does not exist. Repeated calls overwrite (last write wins);
//     subject, content, and image URL are never touched.
//
//   - GetSubmission(ctx, db, id) -> *domain.HomeworkSubmission, error
//     Fetches a submission by id, or ErrNotFound.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
)

// CreateSubmission inserts a new HomeworkSubmission with analysis unset.
func CreateSubmission(ctx context.Context, db *gorm.DB, subject, content, imageURL string) (*domain.HomeworkSubmission, error) {
	s := &domain.HomeworkSubmission{
		ID:        uuid.NewString(),
		Subject:   subject,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSubmissionAnalysis sets the analysis column of the submission
// identified by id. If no rows are affected, it returns ErrNotFound.
func UpdateSubmissionAnalysis(ctx context.Context, db *gorm.DB, id string, analysis datatypes.JSON) error {
	res := db.WithContext(ctx).
		Model(&domain.HomeworkSubmission{}).
		Where("id = ?", id).
		Update("analysis", analysis)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSubmission fetches a single submission by id, or ErrNotFound.
func GetSubmission(ctx context.Context, db *gorm.DB, id string) (*domain.HomeworkSubmission, error) {
	var s domain.HomeworkSubmission
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSubmissionsPage returns one page of submissions, newest first. An
// empty subject matches all subjects.
func ListSubmissionsPage(ctx context.Context, db *gorm.DB, subject string, offset, limit int) ([]domain.HomeworkSubmission, error) {
	q := db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var out []domain.HomeworkSubmission
	err := q.Find(&out).Error
	return out, err
}

// CountSubmissions returns the number of submissions, optionally filtered by
// subject.
func CountSubmissions(ctx context.Context, db *gorm.DB, subject string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.HomeworkSubmission{})
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
