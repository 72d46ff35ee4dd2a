// Package ai implements the AI backend adapter: an OpenRouter client built
// on the OpenAI-compatible chat-completion API. The adapter is capability
// polymorphic — callers pass a model identifier and a message list and get a
// textual or JSON completion back; which model identifier is used is decided
// upstream from the admin settings.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/limva/limva-backend/internal/domain"
)

// Model identifiers routable through OpenRouter. Deepseek is the default
// backend; GPT-5 is the premium alternative. Matrix-based test generation
// always needs a vision-capable model, so it uses the dedicated pair below
// regardless of which text backend is enabled.
const (
	ModelDeepseek     = "deepseek/deepseek-r1:free"
	ModelGPT5         = "openai/gpt-5"
	ModelVisionGPT    = "openai/gpt-4o"
	ModelVisionGemini = "google/gemini-flash-1.5"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Sentinel errors for upstream failures handlers care about distinguishing.
var (
	// ErrRateLimited indicates the upstream provider rejected the call with
	// HTTP 429 (free-tier quota exhausted or similar).
	ErrRateLimited = errors.New("ai backend rate limit exceeded")

	// ErrInvalidAPIKey indicates the upstream provider rejected the
	// configured credential (HTTP 401).
	ErrInvalidAPIKey = errors.New("ai backend rejected API key")
)

// Options tunes a single completion call.
type Options struct {
	// JSONMode forces a JSON-object response format.
	JSONMode bool
	// Temperature overrides the model default when non-nil.
	Temperature *float32
	// MaxTokens caps the completion length when > 0.
	MaxTokens int
}

// Client is the OpenRouter adapter. The API key is supplied per call because
// it comes from the mutable admin settings, not from process configuration.
type Client struct {
	// BaseURL overrides the OpenRouter endpoint (tests point it at a fake).
	BaseURL string
	// Referer and Title are forwarded as the HTTP-Referer and X-Title
	// attribution headers OpenRouter asks clients to send.
	Referer string
	Title   string
	// HTTPClient overrides the underlying transport when non-nil.
	HTTPClient *http.Client
}

// headerTransport injects the OpenRouter attribution headers on every call.
type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (c *Client) api(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.BaseURL
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.HTTPClient = &http.Client{
		Transport: &headerTransport{base: httpClient.Transport, referer: c.Referer, title: c.Title},
		Timeout:   httpClient.Timeout,
	}
	return openai.NewClientWithConfig(cfg)
}

// Complete sends one chat-completion request and returns the first choice's
// content. Upstream 429/401 responses are classified into ErrRateLimited and
// ErrInvalidAPIKey; everything else is wrapped as a generic failure.
func (c *Client) Complete(ctx context.Context, apiKey, model string, messages []openai.ChatCompletionMessage, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	resp, err := c.api(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai backend returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps upstream HTTP failures onto the adapter's sentinel errors.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
		}
	}
	return fmt.Errorf("ai backend call failed: %w", err)
}

// AnalyzeHomework asks the model to review a student's work and returns the
// structured verdict. When imageURL is non-empty the submission photo is
// attached as a vision part.
func (c *Client) AnalyzeHomework(ctx context.Context, apiKey, model, subject, content, imageURL string) (*domain.Analysis, error) {
	prompt := analyzePrompt(subject, content)

	var msg openai.ChatCompletionMessage
	if imageURL != "" {
		msg = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
			},
		}
	} else {
		msg = openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	}

	raw, err := c.Complete(ctx, apiKey, model, []openai.ChatCompletionMessage{msg}, Options{JSONMode: true})
	if err != nil {
		return nil, err
	}

	var a domain.Analysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &a); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w (raw: %.200s)", err, raw)
	}
	if a.Errors == nil {
		a.Errors = []string{}
	}
	if a.Explanations == nil {
		a.Explanations = []string{}
	}
	return &a, nil
}

// TestPayload is the questions/answers pair a test-generation call returns.
// Both fields are kept as raw JSON; the store persists them verbatim.
type TestPayload struct {
	Questions json.RawMessage `json:"questions"`
	Answers   json.RawMessage `json:"answers"`
}

// GenerateTest asks the model to produce a complete test as one JSON object.
func (c *Client) GenerateTest(ctx context.Context, apiKey, model, subject, difficulty, questionType string, questionCount int, requirements string) (*TestPayload, error) {
	prompt := generateTestPrompt(subject, difficulty, questionType, questionCount, requirements)

	raw, err := c.Complete(ctx, apiKey, model, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, Options{JSONMode: true})
	if err != nil {
		return nil, err
	}
	return parseTestPayload(raw)
}

// GenerateTestFromMatrix asks a vision-capable model to derive a test from
// photographed exam-matrix pages.
func (c *Client) GenerateTestFromMatrix(ctx context.Context, apiKey, model, subject string, matrixImages []string) (*TestPayload, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: matrixPrompt(subject)},
	}
	for _, img := range matrixImages {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img},
		})
	}

	raw, err := c.Complete(ctx, apiKey, model, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}, Options{JSONMode: true})
	if err != nil {
		return nil, err
	}
	return parseTestPayload(raw)
}

// Chat relays an open-ended conversation to the model and returns its reply.
func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (string, error) {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return c.Complete(ctx, apiKey, model, converted, Options{})
}

// ChatWithImageURL sends one user message with an attached image.
func (c *Client) ChatWithImageURL(ctx context.Context, apiKey, model, message, imageURL string) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = "Hãy mô tả hình ảnh này"
	}
	msg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: message},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
		},
	}
	return c.Complete(ctx, apiKey, model, []openai.ChatCompletionMessage{msg}, Options{})
}

func parseTestPayload(raw string) (*TestPayload, error) {
	var p TestPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &p); err != nil {
		return nil, fmt.Errorf("parse test response: %w (raw: %.200s)", err, raw)
	}
	if len(p.Questions) == 0 {
		p.Questions = json.RawMessage("[]")
	}
	if len(p.Answers) == 0 {
		p.Answers = json.RawMessage("[]")
	}
	return &p, nil
}

// extractJSON trims markdown code fences some models wrap around JSON-mode
// output.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return s
}

func analyzePrompt(subject, content string) string {
	return fmt.Sprintf(`Bạn là một giáo viên %s chuyên nghiệp. Hãy phân tích bài làm của học sinh và trả về kết quả dưới dạng JSON với format:
{"hasErrors": boolean, "errors": string[], "explanations": string[]}

Yêu cầu:
- Kiểm tra nội dung có thuộc đúng môn %s không
- Nếu có lỗi, hãy giải thích chi tiết và cung cấp giải pháp cụ thể
- Sử dụng LaTeX cho các công thức toán học (bọc trong $$...$$)
- Trả lời bằng tiếng Việt

Môn học: %s
Nội dung bài làm: %s`, subject, subject, subject, content)
}

func generateTestPrompt(subject, difficulty, questionType string, questionCount int, requirements string) string {
	prompt := fmt.Sprintf(`Bạn là giáo viên %s. Hãy tạo một đề kiểm tra và trả về JSON với format:
{"questions": [...], "answers": [...]}

Môn học: %s
Độ khó: %s
Loại câu hỏi: %s
Số câu: %d`, subject, subject, difficulty, questionType, questionCount)
	if strings.TrimSpace(requirements) != "" {
		prompt += "\nYêu cầu thêm: " + requirements
	}
	return prompt
}

func matrixPrompt(subject string) string {
	return fmt.Sprintf(`Bạn là giáo viên %s. Dựa trên ma trận đề trong các hình ảnh sau, hãy tạo một đề kiểm tra đầy đủ và trả về JSON với format:
{"questions": [...], "answers": [...]}`, subject)
}
