package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/limva/limva-backend/internal/config"
	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

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

//
// Fakes
//

type fakeSettings struct {
	view      services.SettingsView
	updated   *services.UpdateSettingsInput
	imageKey  string
	imageErr  error
	updateErr error
}

func (f *fakeSettings) View(ctx context.Context) (services.SettingsView, error) {
	return f.view, nil
}

func (f *fakeSettings) Update(ctx context.Context, in services.UpdateSettingsInput) (services.SettingsView, error) {
	if f.updateErr != nil {
		return services.SettingsView{}, f.updateErr
	}
	f.updated = &in
	return services.SettingsView{
		DeepseekEnabled: in.DeepseekEnabled,
		Gpt5Enabled:     in.Gpt5Enabled && !in.DeepseekEnabled,
	}, nil
}

func (f *fakeSettings) ImageKey(ctx context.Context) (string, error) {
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return f.imageKey, nil
}

type fakeHomework struct {
	submitRes  *services.SubmitResult
	submitErr  error
	answer     string
	followErr  error
	submission *domain.HomeworkSubmission
	getErr     error
	list       []domain.HomeworkSubmission
	total      int64

	gotSubject  string
	gotContent  string
	gotImageURL string
	gotQuestion string
}

func (f *fakeHomework) Submit(ctx context.Context, subject, content, imageURL string) (*services.SubmitResult, error) {
	f.gotSubject, f.gotContent, f.gotImageURL = subject, content, imageURL
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitRes, nil
}

func (f *fakeHomework) Followup(ctx context.Context, homeworkID, question string) (string, error) {
	f.gotQuestion = question
	if f.followErr != nil {
		return "", f.followErr
	}
	return f.answer, nil
}

func (f *fakeHomework) Get(ctx context.Context, id string) (*domain.HomeworkSubmission, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.submission, nil
}

func (f *fakeHomework) List(ctx context.Context, subject string, page, pageSize int) ([]domain.HomeworkSubmission, int64, error) {
	return f.list, f.total, nil
}

type fakeTests struct {
	test    *domain.GeneratedTest
	genErr  error
	getErr  error
	list    []domain.GeneratedTest
	total   int64
	gotGen  *services.GenerateTestInput
	gotImgs []string
}

func (f *fakeTests) Generate(ctx context.Context, in services.GenerateTestInput) (*domain.GeneratedTest, error) {
	f.gotGen = &in
	if f.genErr != nil {
		return nil, f.genErr
	}
	return f.test, nil
}

func (f *fakeTests) GenerateFromMatrix(ctx context.Context, subject string, matrixImages []string) (*domain.GeneratedTest, error) {
	f.gotImgs = matrixImages
	if f.genErr != nil {
		return nil, f.genErr
	}
	return f.test, nil
}

func (f *fakeTests) Get(ctx context.Context, id string) (*domain.GeneratedTest, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.test, nil
}

func (f *fakeTests) List(ctx context.Context, subject string, page, pageSize int) ([]domain.GeneratedTest, int64, error) {
	return f.list, f.total, nil
}

type fakeChat struct {
	reply    string
	chatErr  error
	conv     *domain.ChatConversation
	convErr  error
	list     []domain.ChatConversation
	total    int64
	gotMsgs  []domain.ChatMessage
	gotImage string
}

func (f *fakeChat) Respond(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	f.gotMsgs = messages
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeChat) RespondWithImage(ctx context.Context, message, imageURL string) (string, error) {
	f.gotImage = imageURL
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeChat) StartConversation(ctx context.Context) (*domain.ChatConversation, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.conv, nil
}

func (f *fakeChat) SaveMessages(ctx context.Context, id string, messages []domain.ChatMessage) (*domain.ChatConversation, error) {
	f.gotMsgs = messages
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.conv, nil
}

func (f *fakeChat) GetConversation(ctx context.Context, id string) (*domain.ChatConversation, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.conv, nil
}

func (f *fakeChat) ListConversations(ctx context.Context, page, pageSize int) ([]domain.ChatConversation, int64, error) {
	return f.list, f.total, nil
}

type fakeUploader struct {
	url    string
	err    error
	gotKey string
}

func (f *fakeUploader) Upload(ctx context.Context, apiKey, base64Image string) (string, error) {
	f.gotKey = apiKey
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

//
// Harness
//

type fixture struct {
	h        *Handlers
	settings *fakeSettings
	homework *fakeHomework
	tests    *fakeTests
	chat     *fakeChat
	uploader *fakeUploader
}

func newFixture(t *testing.T, admin config.AdminConfig) *fixture {
	t.Helper()
	f := &fixture{
		settings: &fakeSettings{imageKey: "imgbb-key"},
		homework: &fakeHomework{},
		tests:    &fakeTests{},
		chat:     &fakeChat{},
		uploader: &fakeUploader{url: "https://i.ibb.co/x/img.jpg"},
	}
	f.h = New(f.settings, f.homework, f.tests, f.chat, f.uploader, newTestDB(t), admin, 0)
	return f
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
