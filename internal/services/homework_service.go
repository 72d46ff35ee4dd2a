// Package services – HomeworkService
//
// HomeworkService drives the submit-and-analyze pipeline: a student's work
// is persisted first, then analyzed by the AI backend, and finally seeded
// into a per-homework chat context so follow-up questions can reference the
// original submission and every prior exchange.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/repo"
	"github.com/limva/limva-backend/internal/subjects"
)

// keyedMutex hands out one mutex per key so unrelated homeworks never
// contend while follow-ups on the same homework serialize. Entries are
// reference-counted and dropped once the last holder unlocks, so the map
// does not grow with the number of distinct homework ids seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// SubmitResult bundles the persisted submission with its analysis. Analysis
// is nil when the AI call failed; the submission is still stored.
type SubmitResult struct {
	Submission *domain.HomeworkSubmission
	Analysis   *domain.Analysis
	// AnalysisErr carries the AI failure, if any, so callers can report a
	// partial success instead of discarding the stored submission.
	AnalysisErr error
}

// HomeworkService owns homework submissions, their analyses, and the
// per-homework follow-up chat context.
type HomeworkService struct {
	DB       *gorm.DB
	AI       AIBackend
	Settings *SettingsService

	followups keyedMutex
}

// Submit validates and stores a homework submission, requests an analysis,
// attaches it, and seeds the follow-up context. The submission survives an
// analysis failure; the error is reported through SubmitResult.AnalysisErr.
func (s *HomeworkService) Submit(ctx context.Context, subject, content, imageURL string) (*SubmitResult, error) {
	tr := otel.Tracer("services/HomeworkService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("homework.subject", subject)),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" && imageURL == "" {
		return nil, ErrEmptyContent
	}
	if !subjects.IsKnown(subject) {
		return nil, ErrUnknownSubject
	}

	cur, err := s.Settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !subjects.IsAllowed(subject, UseGpt5(cur)) {
		return nil, ErrSubjectNotAllowed
	}

	model, apiKey, err := s.Settings.SelectModel(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := repo.CreateSubmission(ctx, s.DB, subject, content, imageURL)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	span.SetAttributes(attribute.String("homework.id", sub.ID))

	analysis, aiErr := s.AI.AnalyzeHomework(ctx, apiKey, model, subject, content, imageURL)
	if aiErr != nil {
		return &SubmitResult{Submission: sub, AnalysisErr: aiErr}, nil
	}

	raw, err := analysis.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	if err := repo.UpdateSubmissionAnalysis(ctx, s.DB, sub.ID, raw); err != nil {
		return nil, fmt.Errorf("attach analysis: %w", err)
	}
	sub.Analysis = raw

	if _, err := repo.CreateContext(ctx, s.DB, sub.ID, subject, content, raw); err != nil {
		return nil, fmt.Errorf("seed chat context: %w", err)
	}
	return &SubmitResult{Submission: sub, Analysis: analysis}, nil
}

// Get returns a stored submission by id.
func (s *HomeworkService) Get(ctx context.Context, id string) (*domain.HomeworkSubmission, error) {
	sub, err := repo.GetSubmission(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// List returns one page of submissions, newest first, with the total count.
// An empty subject matches all subjects.
func (s *HomeworkService) List(ctx context.Context, subject string, page, pageSize int) ([]domain.HomeworkSubmission, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	total, err := repo.CountSubmissions(ctx, s.DB, subject)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListSubmissionsPage(ctx, s.DB, subject, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Followup answers a question about a previously submitted homework. The
// prompt includes the original submission, its analysis, and every prior
// follow-up exchange; the new question/answer pair is then appended to the
// stored context. Appends for the same homework are serialized so no
// exchange is lost under concurrency.
func (s *HomeworkService) Followup(ctx context.Context, homeworkID, question string) (string, error) {
	tr := otel.Tracer("services/HomeworkService")
	ctx, span := tr.Start(ctx, "Followup",
		trace.WithAttributes(attribute.String("homework.id", homeworkID)),
	)
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	hctx, err := repo.GetContextByHomeworkID(ctx, s.DB, homeworkID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrContextNotFound
		}
		return "", err
	}

	model, apiKey, err := s.Settings.SelectModel(ctx)
	if err != nil {
		return "", err
	}

	messages, err := followupMessages(hctx, question)
	if err != nil {
		return "", err
	}

	unlock := s.followups.lock(homeworkID)
	defer unlock()

	answer, err := s.AI.Chat(ctx, apiKey, model, messages)
	if err != nil {
		return "", err
	}
	if _, err := repo.AppendContextQuestion(ctx, s.DB, homeworkID, question, answer); err != nil {
		return "", fmt.Errorf("append followup: %w", err)
	}
	return answer, nil
}

// followupMessages builds the chat transcript sent to the model: a system
// prompt carrying the homework and its analysis, then every prior exchange,
// then the new question.
func followupMessages(hctx *domain.HomeworkChatContext, question string) ([]domain.ChatMessage, error) {
	var b strings.Builder
	b.WriteString("Bạn là trợ lý học tập. Học sinh đã nộp bài tập môn ")
	b.WriteString(hctx.Subject)
	b.WriteString(" sau đây:\n\n")
	b.WriteString(hctx.HomeworkContent)
	if len(hctx.Analysis) > 0 && string(hctx.Analysis) != "{}" {
		b.WriteString("\n\nKết quả phân tích bài làm (JSON):\n")
		b.Write(hctx.Analysis)
	}
	b.WriteString("\n\nHãy trả lời các câu hỏi tiếp theo của học sinh về bài tập này, bằng tiếng Việt, ngắn gọn và dễ hiểu.")

	messages := []domain.ChatMessage{{Role: "system", Content: b.String()}}

	prior, err := hctx.DecodeQuestions()
	if err != nil {
		return nil, fmt.Errorf("decode context questions: %w", err)
	}
	for _, entry := range prior {
		messages = append(messages,
			domain.ChatMessage{Role: "user", Content: entry.Question},
			domain.ChatMessage{Role: "assistant", Content: entry.Answer},
		)
	}
	return append(messages, domain.ChatMessage{Role: "user", Content: question}), nil
}
