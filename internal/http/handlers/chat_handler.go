// Tutor chat HTTP handlers.
//
// This file exposes the open-ended tutor chat endpoints:
//   - POST /chat                  (stateless completion over a transcript)
//   - POST /conversations         (create a persisted conversation)
//   - PUT  /conversations/:id     (replace a conversation transcript)
//   - GET  /conversations/:id     (fetch a conversation)
//
// The chat endpoint itself is stateless: clients own the transcript and may
// persist it through the conversation endpoints whenever they choose.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/services"
)

//
// DTOs
//

// ChatRequest is the JSON payload for a tutor chat completion. Messages is
// the full transcript ending with the user's latest message. When ImageURL
// is set, Message carries the single user utterance and the request routes
// to the vision model instead.
type ChatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
	Message  string               `json:"message"`
	ImageURL string               `json:"imageUrl"`
}

// ChatResponse carries the assistant reply.
type ChatResponse struct {
	Response string `json:"response"`
}

// SaveConversationRequest is the JSON payload for replacing a conversation
// transcript. The complete message list is sent every time.
type SaveConversationRequest struct {
	Messages []domain.ChatMessage `json:"messages" binding:"required"`
}

//
// Handlers
//

// Chat answers a transcript (or a single message with an image) with the
// active model. Nothing is persisted here.
func (h *Handlers) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages required")
		return
	}

	var (
		reply string
		err   error
	)
	if req.ImageURL != "" {
		reply, err = h.chatSvc.RespondWithImage(ctx, strings.TrimSpace(req.Message), req.ImageURL)
	} else {
		reply, err = h.chatSvc.Respond(ctx, req.Messages)
	}
	if err != nil {
		switch err {
		case services.ErrInvalidMessages:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript must end with a non-empty user message")
		default:
			failUpstream(c, err, ErrCodeChatFailed)
		}
		return
	}
	ok(c, http.StatusOK, ChatResponse{Response: reply})
}

// CreateConversation creates an empty persisted conversation.
func (h *Handlers) CreateConversation(c *gin.Context) {
	conv, err := h.chatSvc.StartConversation(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, conv)
}

// SaveConversation replaces a conversation transcript wholesale.
func (h *Handlers) SaveConversation(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	var req SaveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages required")
		return
	}

	conv, err := h.chatSvc.SaveMessages(c.Request.Context(), id, req.Messages)
	if err != nil {
		switch err {
		case services.ErrConversationNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListConversationsResponse contains a page of conversations and pagination
// metadata.
type ListConversationsResponse struct {
	Conversations []domain.ChatConversation `json:"conversations"`
	Pagination    Pagination                `json:"pagination"`
}

// ListConversations returns a page of conversations, most recently updated
// first.
func (h *Handlers) ListConversations(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.chatSvc.ListConversations(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination:    paginate(page, pageSize, total),
	})
}

// GetConversation returns a stored conversation by id.
func (h *Handlers) GetConversation(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	conv, err := h.chatSvc.GetConversation(c.Request.Context(), id)
	if err != nil {
		switch err {
		case services.ErrConversationNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, conv)
}
