package services

import (
	"context"

	"github.com/limva/limva-backend/internal/ai"
	"github.com/limva/limva-backend/internal/domain"
)

// AIBackend abstracts the OpenRouter adapter so services can be exercised
// against a fake in tests. *ai.Client satisfies it.
type AIBackend interface {
	AnalyzeHomework(ctx context.Context, apiKey, model, subject, content, imageURL string) (*domain.Analysis, error)
	GenerateTest(ctx context.Context, apiKey, model, subject, difficulty, questionType string, questionCount int, requirements string) (*ai.TestPayload, error)
	GenerateTestFromMatrix(ctx context.Context, apiKey, model, subject string, matrixImages []string) (*ai.TestPayload, error)
	Chat(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (string, error)
	ChatWithImageURL(ctx context.Context, apiKey, model, message, imageURL string) (string, error)
}
