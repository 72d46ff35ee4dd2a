package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/limva/limva-backend/internal/ai"
	"github.com/limva/limva-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.AdminSettings{},
		&domain.HomeworkSubmission{},
		&domain.GeneratedTest{},
		&domain.ChatConversation{},
		&domain.HomeworkChatContext{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeAI implements AIBackend with canned responses. Each method records the
// arguments it was last called with so tests can assert on model routing and
// prompt construction.
type fakeAI struct {
	analysis   *domain.Analysis
	analyzeErr error

	testPayload *ai.TestPayload
	testErr     error

	chatReply string
	chatErr   error

	lastModel    string
	lastAPIKey   string
	lastMessages []domain.ChatMessage
	lastImages   []string
	chatCalls    int
}

func (f *fakeAI) AnalyzeHomework(ctx context.Context, apiKey, model, subject, content, imageURL string) (*domain.Analysis, error) {
	f.lastAPIKey, f.lastModel = apiKey, model
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	if f.analysis != nil {
		return f.analysis, nil
	}
	return &domain.Analysis{HasErrors: false, Errors: []string{}, Explanations: []string{"ok"}}, nil
}

func (f *fakeAI) GenerateTest(ctx context.Context, apiKey, model, subject, difficulty, questionType string, questionCount int, requirements string) (*ai.TestPayload, error) {
	f.lastAPIKey, f.lastModel = apiKey, model
	if f.testErr != nil {
		return nil, f.testErr
	}
	return f.testPayload, nil
}

func (f *fakeAI) GenerateTestFromMatrix(ctx context.Context, apiKey, model, subject string, matrixImages []string) (*ai.TestPayload, error) {
	f.lastAPIKey, f.lastModel, f.lastImages = apiKey, model, matrixImages
	if f.testErr != nil {
		return nil, f.testErr
	}
	return f.testPayload, nil
}

func (f *fakeAI) Chat(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (string, error) {
	f.lastAPIKey, f.lastModel, f.lastMessages = apiKey, model, messages
	f.chatCalls++
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatReply, nil
}

func (f *fakeAI) ChatWithImageURL(ctx context.Context, apiKey, model, message, imageURL string) (string, error) {
	f.lastAPIKey, f.lastModel = apiKey, model
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatReply, nil
}
