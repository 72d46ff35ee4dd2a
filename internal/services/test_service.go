package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/repo"
	"github.com/limva/limva-backend/internal/subjects"
)

// maxQuestionCount caps a single generated test.
const maxQuestionCount = 50

// GenerateTestInput are the parameters for requirement-driven generation.
type GenerateTestInput struct {
	Subject       string
	Difficulty    string
	QuestionType  string
	QuestionCount int
	Requirements  string
}

// TestService generates tests through the AI backend and persists them.
// Questions and answers always land together; no partially generated test is
// ever stored.
type TestService struct {
	DB       *gorm.DB
	AI       AIBackend
	Settings *SettingsService
}

// Generate produces a test from explicit parameters and stores it.
func (s *TestService) Generate(ctx context.Context, in GenerateTestInput) (*domain.GeneratedTest, error) {
	tr := otel.Tracer("services/TestService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("test.subject", in.Subject),
			attribute.Int("test.question_count", in.QuestionCount),
		),
	)
	defer span.End()

	if in.QuestionCount < 1 || in.QuestionCount > maxQuestionCount {
		return nil, ErrInvalidQuestionCount
	}
	if err := s.checkSubject(ctx, in.Subject); err != nil {
		return nil, err
	}

	model, apiKey, err := s.Settings.SelectModel(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := s.AI.GenerateTest(ctx, apiKey, model, in.Subject, in.Difficulty, in.QuestionType, in.QuestionCount, in.Requirements)
	if err != nil {
		return nil, err
	}
	if questionCount(payload.Questions) == 0 {
		return nil, ErrEmptyTest
	}

	return repo.CreateTest(ctx, s.DB, repo.NewTestParams{
		Subject:       in.Subject,
		Difficulty:    in.Difficulty,
		QuestionType:  in.QuestionType,
		QuestionCount: in.QuestionCount,
		Requirements:  in.Requirements,
		Questions:     datatypes.JSON(payload.Questions),
		Answers:       datatypes.JSON(payload.Answers),
	})
}

// GenerateFromMatrix produces a test from one or more images of an exam
// specification matrix. The question count is taken from what the model
// actually produced, since the matrix itself dictates the structure.
func (s *TestService) GenerateFromMatrix(ctx context.Context, subject string, matrixImages []string) (*domain.GeneratedTest, error) {
	tr := otel.Tracer("services/TestService")
	ctx, span := tr.Start(ctx, "GenerateFromMatrix",
		trace.WithAttributes(
			attribute.String("test.subject", subject),
			attribute.Int("test.matrix_images", len(matrixImages)),
		),
	)
	defer span.End()

	if len(matrixImages) == 0 {
		return nil, ErrEmptyContent
	}
	if err := s.checkSubject(ctx, subject); err != nil {
		return nil, err
	}

	model, apiKey, err := s.Settings.SelectVisionModel(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := s.AI.GenerateTestFromMatrix(ctx, apiKey, model, subject, matrixImages)
	if err != nil {
		return nil, err
	}
	n := questionCount(payload.Questions)
	if n == 0 {
		return nil, ErrEmptyTest
	}

	return repo.CreateTest(ctx, s.DB, repo.NewTestParams{
		Subject:       subject,
		Difficulty:    "matrix-based",
		QuestionType:  "matrix-generated",
		QuestionCount: n,
		Questions:     datatypes.JSON(payload.Questions),
		Answers:       datatypes.JSON(payload.Answers),
	})
}

// Get returns a stored test by id.
func (s *TestService) Get(ctx context.Context, id string) (*domain.GeneratedTest, error) {
	t, err := repo.GetTest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns one page of generated tests, newest first, with the total
// count. An empty subject matches all subjects.
func (s *TestService) List(ctx context.Context, subject string, page, pageSize int) ([]domain.GeneratedTest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	total, err := repo.CountTests(ctx, s.DB, subject)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListTestsPage(ctx, s.DB, subject, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *TestService) checkSubject(ctx context.Context, subject string) error {
	if strings.TrimSpace(subject) == "" || !subjects.IsKnown(subject) {
		return ErrUnknownSubject
	}
	cur, err := s.Settings.Current(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !subjects.IsAllowed(subject, UseGpt5(cur)) {
		return ErrSubjectNotAllowed
	}
	return nil
}

// questionCount counts the elements of a JSON array payload. Anything that
// is not a JSON array counts as zero.
func questionCount(raw json.RawMessage) int {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return 0
	}
	return len(arr)
}
