package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/limva/limva-backend/internal/ai"
	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/repo"
)

func TestKeyedMutex_SerializesAndEvictsIdleLocks(t *testing.T) {
	var km keyedMutex
	var active int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		key := "hw-a"
		if i%2 == 1 {
			key = "hw-b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := km.lock(key)
			defer unlock()
			if n := atomic.AddInt32(&active, 1); n > 2 {
				t.Errorf("more than one holder per key: %d active", n)
			}
			atomic.AddInt32(&active, -1)
		}(key)
	}
	wg.Wait()

	km.mu.Lock()
	retained := len(km.locks)
	km.mu.Unlock()
	if retained != 0 {
		t.Fatalf("idle locks retained in map: %d", retained)
	}
}

func newHomeworkService(t *testing.T, fake *fakeAI) *HomeworkService {
	t.Helper()
	db := newTestDB(t)
	return &HomeworkService{
		DB:       db,
		AI:       fake,
		Settings: &SettingsService{DB: db, FallbackOpenRouterKey: "sk-or-test"},
	}
}

func TestSubmit_FullPipeline(t *testing.T) {
	fake := &fakeAI{analysis: &domain.Analysis{
		HasErrors:    true,
		Errors:       []string{"2+2=5 sai"},
		Explanations: []string{"2+2=4"},
	}}
	svc := newHomeworkService(t, fake)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "Toán", "2+2=5", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AnalysisErr != nil {
		t.Fatalf("unexpected analysis error: %v", res.AnalysisErr)
	}
	if res.Analysis == nil || !res.Analysis.HasErrors {
		t.Fatalf("analysis missing: %+v", res)
	}
	if fake.lastModel != ai.ModelDeepseek {
		t.Fatalf("default settings must route to deepseek, got %s", fake.lastModel)
	}

	// Analysis attached to the stored submission.
	stored, err := repo.GetSubmission(ctx, svc.DB, res.Submission.ID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if !strings.Contains(string(stored.Analysis), "2+2=5 sai") {
		t.Fatalf("analysis not persisted: %s", stored.Analysis)
	}

	// Follow-up context seeded with an empty question log.
	hctx, err := repo.GetContextByHomeworkID(ctx, svc.DB, res.Submission.ID)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if hctx.HomeworkContent != "2+2=5" || hctx.Subject != "Toán" {
		t.Fatalf("context seeded wrong: %+v", hctx)
	}
	qs, _ := hctx.DecodeQuestions()
	if len(qs) != 0 {
		t.Fatalf("fresh context must have no questions")
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc := newHomeworkService(t, &fakeAI{})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "Toán", "   ", ""); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("blank content: got %v", err)
	}
	if _, err := svc.Submit(ctx, "Thiên văn học", "x", ""); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("unknown subject: got %v", err)
	}
	// Humanities require GPT-5; default settings run deepseek.
	if _, err := svc.Submit(ctx, "Ngữ văn", "x", ""); !errors.Is(err, ErrSubjectNotAllowed) {
		t.Fatalf("gpt-only subject on deepseek: got %v", err)
	}
}

func TestSubmit_ImageOnlyIsAccepted(t *testing.T) {
	svc := newHomeworkService(t, &fakeAI{})

	res, err := svc.Submit(context.Background(), "Toán", "", "https://i.ibb.co/x/page.jpg")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Submission.ImageURL != "https://i.ibb.co/x/page.jpg" {
		t.Fatalf("image url lost: %+v", res.Submission)
	}
}

func TestSubmit_AnalysisFailureKeepsSubmission(t *testing.T) {
	fake := &fakeAI{analyzeErr: errors.New("upstream exploded")}
	svc := newHomeworkService(t, fake)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "Toán", "bài khó", "")
	if err != nil {
		t.Fatalf("submit should not fail outright: %v", err)
	}
	if res.AnalysisErr == nil {
		t.Fatalf("analysis error not surfaced")
	}
	if res.Analysis != nil {
		t.Fatalf("no analysis expected")
	}

	stored, err := repo.GetSubmission(ctx, svc.DB, res.Submission.ID)
	if err != nil {
		t.Fatalf("submission should survive the AI failure: %v", err)
	}
	if len(stored.Analysis) != 0 {
		t.Fatalf("analysis should stay unset: %s", stored.Analysis)
	}

	// No context is seeded without an analysis.
	if _, err := repo.GetContextByHomeworkID(ctx, svc.DB, res.Submission.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("context should not exist, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newHomeworkService(t, &fakeAI{})

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestFollowup_BuildsTranscriptAndAppends(t *testing.T) {
	fake := &fakeAI{
		analysis:  &domain.Analysis{HasErrors: true, Errors: []string{"sai"}, Explanations: []string{"sửa"}},
		chatReply: "Vì phép cộng đúng là 4",
	}
	svc := newHomeworkService(t, fake)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "Toán", "2+2=5", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := res.Submission.ID

	answer, err := svc.Followup(ctx, id, "Vì sao sai?")
	if err != nil {
		t.Fatalf("followup: %v", err)
	}
	if answer != "Vì phép cộng đúng là 4" {
		t.Fatalf("wrong answer: %q", answer)
	}

	// First prompt: system message with the homework, then the question.
	if len(fake.lastMessages) != 2 {
		t.Fatalf("expected system+question, got %d messages", len(fake.lastMessages))
	}
	sys := fake.lastMessages[0]
	if sys.Role != "system" || !strings.Contains(sys.Content, "2+2=5") || !strings.Contains(sys.Content, "Toán") {
		t.Fatalf("system prompt missing homework: %+v", sys)
	}
	if fake.lastMessages[1].Role != "user" || fake.lastMessages[1].Content != "Vì sao sai?" {
		t.Fatalf("question not last: %+v", fake.lastMessages[1])
	}

	// Second follow-up sees the first exchange in the transcript.
	fake.chatReply = "Đúng vậy"
	if _, err := svc.Followup(ctx, id, "Vậy 2+2=4 đúng không?"); err != nil {
		t.Fatalf("second followup: %v", err)
	}
	if len(fake.lastMessages) != 4 {
		t.Fatalf("expected system+QA+question, got %d messages", len(fake.lastMessages))
	}
	if fake.lastMessages[1].Content != "Vì sao sai?" || fake.lastMessages[2].Content != "Vì phép cộng đúng là 4" {
		t.Fatalf("prior exchange missing: %+v", fake.lastMessages)
	}

	hctx, err := repo.GetContextByHomeworkID(ctx, svc.DB, id)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	qs, _ := hctx.DecodeQuestions()
	if len(qs) != 2 {
		t.Fatalf("expected 2 logged exchanges, got %d", len(qs))
	}
}

func TestFollowup_Validation(t *testing.T) {
	fake := &fakeAI{chatReply: "ok"}
	svc := newHomeworkService(t, fake)
	ctx := context.Background()

	if _, err := svc.Followup(ctx, "hw-x", "  "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("blank question: got %v", err)
	}
	if _, err := svc.Followup(ctx, "missing", "Tại sao?"); !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("missing context: got %v", err)
	}
}

func TestFollowup_AIFailureLeavesLogUntouched(t *testing.T) {
	fake := &fakeAI{}
	svc := newHomeworkService(t, fake)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "Toán", "x", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	fake.chatErr = errors.New("model unavailable")
	if _, err := svc.Followup(ctx, res.Submission.ID, "hỏi gì đó"); err == nil {
		t.Fatalf("expected failure")
	}

	hctx, err := repo.GetContextByHomeworkID(ctx, svc.DB, res.Submission.ID)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	qs, _ := hctx.DecodeQuestions()
	if len(qs) != 0 {
		t.Fatalf("failed follow-up must not be logged, got %d entries", len(qs))
	}
}

func TestList_Pagination(t *testing.T) {
	svc := newHomeworkService(t, &fakeAI{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Submit(ctx, "Toán", "bài", ""); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	items, total, err := svc.List(ctx, "Toán", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Fatalf("total mismatch: %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("page size mismatch: %d", len(items))
	}
}
