// Package domain defines the persistence models for the LimVA platform:
// admin settings, homework submissions, generated tests, chat conversations,
// and per-homework follow-up context. These types are mapped with GORM and
// form the core data layer of the application.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TimeLayout is the fixed ISO-8601 rendering used everywhere a timestamp is
// serialized to text (SQL exports, follow-up entries). UTC values render with
// millisecond precision and an explicit "+00:00" offset, which both
// PostgreSQL and SQLite parse back losslessly.
const TimeLayout = "2006-01-02T15:04:05.000-07:00"

// AdminSettings holds the single active platform configuration: which AI
// backend is enabled and the credentials used to reach external services.
//
// Invariant: DeepseekEnabled and Gpt5Enabled are never both true. The
// settings service resolves conflicting updates before persisting; the store
// keeps at most one row, replaced wholesale on every update.
//
// The flag columns carry no schema default: GORM omits zero-valued fields
// that have a default tag, which would turn "disable Deepseek" into a no-op
// on insert. The service substitutes the documented defaults when the table
// is empty instead.
type AdminSettings struct {
	ID               string    `json:"id"               gorm:"type:varchar(64);primaryKey"`
	DeepseekEnabled  bool      `json:"deepseekEnabled"  gorm:"not null"`
	Gpt5Enabled      bool      `json:"gpt5Enabled"      gorm:"not null"`
	OpenRouterAPIKey string    `json:"openrouterApiKey" gorm:"column:openrouter_api_key;type:text"`
	ImgBBAPIKey      string    `json:"imgbbApiKey"      gorm:"column:imgbb_api_key;type:text"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName returns the database table name for AdminSettings.
func (AdminSettings) TableName() string { return "admin_settings" }

// Analysis is the structured result the AI backend produces for a homework
// submission. It is stored as a JSON column on HomeworkSubmission and copied
// into the follow-up context at creation time.
type Analysis struct {
	HasErrors    bool     `json:"hasErrors"`
	Errors       []string `json:"errors"`
	Explanations []string `json:"explanations"`
}

// JSON serializes the analysis into a datatypes.JSON column value.
func (a Analysis) JSON() (datatypes.JSON, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// HomeworkSubmission is one piece of student work submitted for AI review.
//
// Lifecycle: created with Analysis == nil, mutated exactly once to attach the
// AI analysis, immutable afterwards. Follow-up Q&A lives in
// HomeworkChatContext, not here.
type HomeworkSubmission struct {
	ID        string         `json:"id"        gorm:"type:varchar(64);primaryKey"`
	Subject   string         `json:"subject"   gorm:"type:varchar(50);not null;index:idx_homework_submissions_subject"`
	Content   string         `json:"content"   gorm:"type:text;not null"`
	ImageURL  string         `json:"imageUrl"  gorm:"column:image_url;type:text"`
	Analysis  datatypes.JSON `json:"analysis"  gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"createdAt" gorm:"index:idx_homework_submissions_created_at"`
}

// TableName returns the database table name for HomeworkSubmission.
func (HomeworkSubmission) TableName() string { return "homework_submissions" }

// GeneratedTest is an AI-generated test. Questions and answers are populated
// together from a single AI response; the row is immutable after creation and
// no partial-test state is ever observable.
type GeneratedTest struct {
	ID            string         `json:"id"            gorm:"type:varchar(64);primaryKey"`
	Subject       string         `json:"subject"       gorm:"type:varchar(50);not null;index:idx_generated_tests_subject"`
	Difficulty    string         `json:"difficulty"    gorm:"type:varchar(20);not null"`
	QuestionType  string         `json:"questionType"  gorm:"type:varchar(30);not null"`
	QuestionCount int            `json:"questionCount" gorm:"not null"`
	Requirements  string         `json:"requirements"  gorm:"type:text"`
	Questions     datatypes.JSON `json:"questions"     gorm:"type:jsonb;not null"`
	Answers       datatypes.JSON `json:"answers"       gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `json:"createdAt"     gorm:"index:idx_generated_tests_created_at"`
}

// TableName returns the database table name for GeneratedTest.
func (GeneratedTest) TableName() string { return "generated_tests" }

// ChatMessage is a single utterance in an open-ended tutor conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatConversation stores an open-ended tutor conversation. The message list
// is rewritten wholesale on each update rather than appended row by row.
type ChatConversation struct {
	ID        string         `json:"id"        gorm:"type:varchar(64);primaryKey"`
	Messages  datatypes.JSON `json:"messages"  gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `json:"createdAt" gorm:"index:idx_chat_conversations_created_at"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TableName returns the database table name for ChatConversation.
func (ChatConversation) TableName() string { return "chat_conversations" }

// DecodeMessages unmarshals the stored message list. A nil or empty column
// decodes to an empty slice.
func (c *ChatConversation) DecodeMessages() ([]ChatMessage, error) {
	if len(c.Messages) == 0 {
		return []ChatMessage{}, nil
	}
	var out []ChatMessage
	if err := json.Unmarshal(c.Messages, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ChatMessage{}
	}
	return out, nil
}

// ContextEntry is one answered follow-up question in a homework context.
// Timestamp uses TimeLayout so entries survive SQL export/import verbatim.
type ContextEntry struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

// HomeworkChatContext gives the AI conversational memory across follow-up
// questions for a single homework submission: the original content and
// analysis plus the ordered log of answered questions.
//
// Questions is append-only from the caller's perspective; each follow-up is
// appended and the whole array rewritten. HomeworkID carries a unique index,
// so at most one context exists per submission.
type HomeworkChatContext struct {
	ID              string         `json:"id"              gorm:"type:varchar(64);primaryKey"`
	HomeworkID      string         `json:"homeworkId"      gorm:"column:homework_id;type:varchar(64);not null;uniqueIndex:ux_homework_chat_context_homework"`
	Subject         string         `json:"subject"         gorm:"type:varchar(50);not null"`
	HomeworkContent string         `json:"homeworkContent" gorm:"type:text;not null"`
	Analysis        datatypes.JSON `json:"analysis"        gorm:"type:jsonb;not null"`
	Questions       datatypes.JSON `json:"questions"       gorm:"type:jsonb;not null"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// TableName returns the database table name for HomeworkChatContext.
func (HomeworkChatContext) TableName() string { return "homework_chat_context" }

// DecodeQuestions unmarshals the stored follow-up log. A nil or empty column
// decodes to an empty slice.
func (h *HomeworkChatContext) DecodeQuestions() ([]ContextEntry, error) {
	if len(h.Questions) == 0 {
		return []ContextEntry{}, nil
	}
	var out []ContextEntry
	if err := json.Unmarshal(h.Questions, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ContextEntry{}
	}
	return out, nil
}
