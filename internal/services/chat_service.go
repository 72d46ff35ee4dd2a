package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/repo"
)

// ChatService answers open-ended tutor conversations and persists their
// transcripts. Unlike homework follow-ups, these conversations carry no
// stored context beyond the message list itself.
type ChatService struct {
	DB       *gorm.DB
	AI       AIBackend
	Settings *SettingsService
}

// Respond sends a full conversation transcript to the active model and
// returns the assistant reply. The transcript must be non-empty and end with
// a user message.
func (s *ChatService) Respond(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(attribute.Int("chat.messages", len(messages))),
	)
	defer span.End()

	if len(messages) == 0 {
		return "", ErrInvalidMessages
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || strings.TrimSpace(last.Content) == "" {
		return "", ErrInvalidMessages
	}

	model, apiKey, err := s.Settings.SelectModel(ctx)
	if err != nil {
		return "", err
	}
	return s.AI.Chat(ctx, apiKey, model, messages)
}

// RespondWithImage answers a single user message that references an image,
// routed to the vision-capable model.
func (s *ChatService) RespondWithImage(ctx context.Context, message, imageURL string) (string, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "RespondWithImage")
	defer span.End()

	if strings.TrimSpace(message) == "" || imageURL == "" {
		return "", ErrInvalidMessages
	}

	model, apiKey, err := s.Settings.SelectVisionModel(ctx)
	if err != nil {
		return "", err
	}
	return s.AI.ChatWithImageURL(ctx, apiKey, model, message, imageURL)
}

// StartConversation creates an empty persisted conversation.
func (s *ChatService) StartConversation(ctx context.Context) (*domain.ChatConversation, error) {
	return repo.CreateConversation(ctx, s.DB)
}

// SaveMessages replaces a conversation's transcript wholesale. Callers send
// the complete message list every time; nothing is merged server-side.
func (s *ChatService) SaveMessages(ctx context.Context, id string, messages []domain.ChatMessage) (*domain.ChatConversation, error) {
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	conv, err := repo.ReplaceConversationMessages(ctx, s.DB, id, messages)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations returns one page of conversations, most recently updated
// first, with the total count.
func (s *ChatService) ListConversations(ctx context.Context, page, pageSize int) ([]domain.ChatConversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	total, err := repo.CountConversations(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListConversationsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetConversation returns a stored conversation by id.
func (s *ChatService) GetConversation(ctx context.Context, id string) (*domain.ChatConversation, error) {
	conv, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}
