// Handler wiring for the public API.
//
// This file declares the service interfaces the HTTP layer consumes and the
// Handlers aggregate that binds them. Handlers are transport-thin: they
// validate and normalize inputs, delegate to application services, and map
// sentinel errors onto the stable HTTP error taxonomy in errors.go.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/ai"
	"github.com/limva/limva-backend/internal/config"
	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/services"
)

// SettingsService defines the admin settings operations consumed by HTTP
// handlers. Implementations must redact credentials in every returned view.
type SettingsService interface {
	// View returns the current settings with credentials redacted.
	View(ctx context.Context) (services.SettingsView, error)
	// Update replaces the settings and returns the redacted result.
	Update(ctx context.Context, in services.UpdateSettingsInput) (services.SettingsView, error)
	// ImageKey resolves the image-host API key.
	ImageKey(ctx context.Context) (string, error)
}

// HomeworkService defines homework submission and follow-up operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type HomeworkService interface {
	// Submit stores a submission, analyzes it, and seeds its chat context.
	Submit(ctx context.Context, subject, content, imageURL string) (*services.SubmitResult, error)
	// Followup answers a question about a stored submission.
	Followup(ctx context.Context, homeworkID, question string) (string, error)
	// Get fetches a stored submission.
	Get(ctx context.Context, id string) (*domain.HomeworkSubmission, error)
	// List returns a page of submissions and the total count.
	List(ctx context.Context, subject string, page, pageSize int) ([]domain.HomeworkSubmission, int64, error)
}

// TestService defines AI test generation operations.
type TestService interface {
	// Generate produces and stores a test from explicit parameters.
	Generate(ctx context.Context, in services.GenerateTestInput) (*domain.GeneratedTest, error)
	// GenerateFromMatrix produces and stores a test from matrix images.
	GenerateFromMatrix(ctx context.Context, subject string, matrixImages []string) (*domain.GeneratedTest, error)
	// Get fetches a stored test.
	Get(ctx context.Context, id string) (*domain.GeneratedTest, error)
	// List returns a page of tests and the total count.
	List(ctx context.Context, subject string, page, pageSize int) ([]domain.GeneratedTest, int64, error)
}

// ChatService defines tutor chat and conversation persistence operations.
type ChatService interface {
	// Respond answers a full transcript with the active model.
	Respond(ctx context.Context, messages []domain.ChatMessage) (string, error)
	// RespondWithImage answers a single message referencing an image.
	RespondWithImage(ctx context.Context, message, imageURL string) (string, error)
	// StartConversation creates an empty persisted conversation.
	StartConversation(ctx context.Context) (*domain.ChatConversation, error)
	// SaveMessages replaces a conversation transcript wholesale.
	SaveMessages(ctx context.Context, id string, messages []domain.ChatMessage) (*domain.ChatConversation, error)
	// GetConversation fetches a stored conversation.
	GetConversation(ctx context.Context, id string) (*domain.ChatConversation, error)
	// ListConversations returns a page of conversations and the total count.
	ListConversations(ctx context.Context, page, pageSize int) ([]domain.ChatConversation, int64, error)
}

// ImageUploader uploads a base64 image payload and returns its hosted URL.
type ImageUploader interface {
	Upload(ctx context.Context, apiKey, base64Image string) (string, error)
}

// Handlers groups the HTTP endpoints for admin, homework, tests, chat, and
// uploads. It depends on abstract service interfaces to keep transport
// concerns separate from business logic. DB is held only for the export and
// import endpoints, which operate on the store as a whole.
type Handlers struct {
	settingsSvc SettingsService
	homeworkSvc HomeworkService
	testSvc     TestService
	chatSvc     ChatService
	uploader    ImageUploader

	db        *gorm.DB
	admin     config.AdminConfig
	importMax int64

	// Admin sessions are in-memory; a restart logs everyone out and
	// expired tokens are evicted lazily on validation.
	sessions   sync.Map // token -> expiry time.Time
	sessionTTL time.Duration
}

// defaultSessionTTL bounds how long an admin login stays valid.
const defaultSessionTTL = 12 * time.Hour

// New constructs a Handlers instance bound to the given services.
func New(settingsSvc SettingsService, homeworkSvc HomeworkService, testSvc TestService, chatSvc ChatService, uploader ImageUploader, db *gorm.DB, admin config.AdminConfig, importMax int64) *Handlers {
	if importMax <= 0 {
		importMax = 50 << 20
	}
	return &Handlers{
		settingsSvc: settingsSvc,
		homeworkSvc: homeworkSvc,
		testSvc:     testSvc,
		chatSvc:     chatSvc,
		uploader:    uploader,
		db:          db,
		admin:       admin,
		importMax:   importMax,
		sessionTTL:  defaultSessionTTL,
	}
}

// issueToken mints and records a new admin session token with its expiry.
func (h *Handlers) issueToken() string {
	ttl := h.sessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	token := uuid.NewString()
	h.sessions.Store(token, time.Now().Add(ttl))
	return token
}

// validToken reports whether token belongs to a live admin session. Expired
// sessions are evicted on the way out.
func (h *Handlers) validToken(token string) bool {
	if token == "" {
		return false
	}
	v, ok := h.sessions.Load(token)
	if !ok {
		return false
	}
	exp, ok := v.(time.Time)
	if !ok || time.Now().After(exp) {
		h.sessions.Delete(token)
		return false
	}
	return true
}

// failUpstream maps AI adapter and service errors onto HTTP responses. The
// fallbackCode is used for errors with no more specific mapping.
func failUpstream(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		fail(c, http.StatusTooManyRequests, ErrCodeUpstreamRateLimit, "AI service rate limit reached, try again later")
	case errors.Is(err, ai.ErrInvalidAPIKey):
		fail(c, http.StatusUnauthorized, ErrCodeUpstreamAuthFailed, "AI service rejected the configured API key")
	case errors.Is(err, services.ErrAPIKeyMissing):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no OpenRouter API key configured")
	case errors.Is(err, services.ErrImageKeyMissing):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no ImgBB API key configured")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}
