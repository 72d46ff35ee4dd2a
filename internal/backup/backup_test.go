package backup

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/limva/limva-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:backup_%s?mode=memory&cache=shared", uuid.NewString())

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

// dataSection returns everything from the data marker onward, so round-trip
// comparisons ignore the timestamped header.
func dataSection(t *testing.T, artifact string) string {
	t.Helper()
	i := strings.Index(artifact, "-- Data Export")
	if i < 0 {
		t.Fatalf("artifact missing data marker:\n%s", artifact)
	}
	return artifact[i:]
}

func seedFull(t *testing.T, db *gorm.DB) {
	t.Helper()
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	rows := []any{
		&domain.AdminSettings{
			ID: "s-1", DeepseekEnabled: true, Gpt5Enabled: false,
			OpenRouterAPIKey: "sk-or-test", ImgBBAPIKey: "imgbb-test",
			CreatedAt: base, UpdatedAt: base,
		},
		&domain.HomeworkSubmission{
			ID: "hw-1", Subject: "Toán", Content: "Giải phương trình x^2 = 4",
			Analysis:  datatypes.JSON(`{"hasErrors":false,"errors":[],"explanations":["x = ±2"]}`),
			CreatedAt: base.Add(time.Minute),
		},
		&domain.HomeworkSubmission{
			ID: "hw-2", Subject: "Ngữ văn", Content: "Phân tích bài thơ",
			ImageURL:  "https://i.ibb.co/abc/page.jpg",
			CreatedAt: base.Add(2 * time.Minute),
		},
		&domain.GeneratedTest{
			ID: "t-1", Subject: "Toán", Difficulty: "medium", QuestionType: "multiple-choice",
			QuestionCount: 2, Requirements: "chương 1",
			Questions:     datatypes.JSON(`[{"q":"1+1?"},{"q":"2+2?"}]`),
			Answers:       datatypes.JSON(`[{"a":"2"},{"a":"4"}]`),
			CreatedAt:     base.Add(3 * time.Minute),
		},
		&domain.ChatConversation{
			ID:        "c-1",
			Messages:  datatypes.JSON(`[{"role":"user","content":"xin chào"},{"role":"assistant","content":"chào bạn"}]`),
			CreatedAt: base.Add(4 * time.Minute), UpdatedAt: base.Add(5 * time.Minute),
		},
		&domain.HomeworkChatContext{
			ID: "ctx-1", HomeworkID: "hw-1", Subject: "Toán",
			HomeworkContent: "Giải phương trình x^2 = 4",
			Analysis:        datatypes.JSON(`{"hasErrors":false,"errors":[],"explanations":["x = ±2"]}`),
			Questions:       datatypes.JSON(`[{"question":"còn cách khác?","answer":"có, dùng căn bậc hai","timestamp":"2025-03-10T08:10:00.000+00:00"}]`),
			CreatedAt:       base.Add(6 * time.Minute), UpdatedAt: base.Add(7 * time.Minute),
		},
	}
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestExport_EmptyStore(t *testing.T) {
	db := newTestDB(t)

	artifact, err := Export(context.Background(), db)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(artifact, "CREATE TABLE IF NOT EXISTS admin_settings") {
		t.Fatalf("artifact missing schema preamble")
	}
	if strings.Contains(dataSection(t, artifact), "INSERT INTO") {
		t.Fatalf("empty store should produce no INSERT statements")
	}
}

func TestRoundTrip_Empty(t *testing.T) {
	src := newTestDB(t)
	dst := newTestDB(t)

	first, err := Export(context.Background(), src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := Import(context.Background(), dst, first); err != nil {
		t.Fatalf("import: %v", err)
	}
	second, err := Export(context.Background(), dst)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if dataSection(t, first) != dataSection(t, second) {
		t.Fatalf("empty round trip diverged:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestRoundTrip_FullStore(t *testing.T) {
	src := newTestDB(t)
	dst := newTestDB(t)
	seedFull(t, src)

	first, err := Export(context.Background(), src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	res, err := Import(context.Background(), dst, first)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("import failures: %+v", res.Failed)
	}
	if res.Attempted != res.Succeeded {
		t.Fatalf("attempted %d != succeeded %d", res.Attempted, res.Succeeded)
	}

	second, err := Export(context.Background(), dst)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if dataSection(t, first) != dataSection(t, second) {
		t.Fatalf("round trip diverged:\n--- first ---\n%s\n--- second ---\n%s",
			dataSection(t, first), dataSection(t, second))
	}

	// Spot-check field fidelity on the far side.
	var hw domain.HomeworkSubmission
	if err := dst.Where("id = ?", "hw-1").First(&hw).Error; err != nil {
		t.Fatalf("load hw-1: %v", err)
	}
	if hw.Subject != "Toán" || hw.Content != "Giải phương trình x^2 = 4" {
		t.Fatalf("submission corrupted: %+v", hw)
	}
}

func TestRoundTrip_SingleQuoteEscaping(t *testing.T) {
	src := newTestDB(t)
	dst := newTestDB(t)

	content := "It's a 'quoted' answer; with a semicolon"
	if err := src.Create(&domain.HomeworkSubmission{
		ID: "hw-q", Subject: "Tiếng Anh", Content: content,
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	artifact, err := Export(context.Background(), src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(artifact, "It''s a ''quoted'' answer; with a semicolon") {
		t.Fatalf("quotes not doubled in artifact:\n%s", dataSection(t, artifact))
	}

	if _, err := Import(context.Background(), dst, artifact); err != nil {
		t.Fatalf("import: %v", err)
	}
	var hw domain.HomeworkSubmission
	if err := dst.Where("id = ?", "hw-q").First(&hw).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if hw.Content != content {
		t.Fatalf("content corrupted: got %q want %q", hw.Content, content)
	}
}

func TestImport_WipesExistingRows(t *testing.T) {
	src := newTestDB(t)
	dst := newTestDB(t)
	seedFull(t, src)

	// Pre-existing row in the destination that is absent from the artifact.
	if err := dst.Create(&domain.GeneratedTest{
		ID: "stale-test", Subject: "Toán", Difficulty: "easy", QuestionType: "essay",
		QuestionCount: 1,
		Questions:     datatypes.JSON(`[{"q":"?"}]`),
		Answers:       datatypes.JSON(`[{"a":"!"}]`),
		CreatedAt:     time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("seed stale: %v", err)
	}

	artifact, err := Export(context.Background(), src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := Import(context.Background(), dst, artifact); err != nil {
		t.Fatalf("import: %v", err)
	}

	var n int64
	if err := dst.Model(&domain.GeneratedTest{}).Where("id = ?", "stale-test").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("stale row survived the wipe")
	}
}

func TestImport_SkipsMalformedStatement(t *testing.T) {
	db := newTestDB(t)

	artifact := strings.Join([]string{
		"-- Data Export",
		"INSERT INTO homework_submissions (id, subject, content, image_url, analysis, created_at) VALUES",
		"('ok-1', 'Toán', 'bài 1', '', '{}', '2025-03-10T08:00:00.000+00:00');",
		// Balanced quotes but not valid SQL.
		"INSERT INTO homework_submissions BROKEN SYNTAX ('x');",
		"INSERT INTO generated_tests (id, subject, difficulty, question_type, question_count, requirements, questions, answers, created_at) VALUES",
		"('ok-2', 'Toán', 'easy', 'essay', 1, '', '[1]', '[2]', '2025-03-10T08:01:00.000+00:00');",
	}, "\n")

	res, err := Import(context.Background(), db, artifact)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Attempted != 3 || res.Succeeded != 2 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Failed[0].Statement, "BROKEN SYNTAX") {
		t.Fatalf("wrong failed statement recorded: %+v", res.Failed[0])
	}

	var n int64
	db.Model(&domain.HomeworkSubmission{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 submission, got %d", n)
	}
	db.Model(&domain.GeneratedTest{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 test, got %d", n)
	}
}

func TestImport_UnterminatedQuoteSwallowsTail(t *testing.T) {
	db := newTestDB(t)

	// The unbalanced quote makes the rest of the file part of one broken
	// statement; the preceding valid statement still lands.
	artifact := strings.Join([]string{
		"INSERT INTO homework_submissions (id, subject, content, image_url, analysis, created_at) VALUES",
		"('ok-1', 'Toán', 'bài 1', '', '{}', '2025-03-10T08:00:00.000+00:00');",
		"INSERT INTO homework_submissions (id, subject, content, image_url, analysis, created_at) VALUES",
		"('bad-1', 'Toán', 'unterminated, '', '{}', '2025-03-10T08:01:00.000+00:00');",
	}, "\n")

	res, err := Import(context.Background(), db, artifact)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Succeeded != 1 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var n int64
	db.Model(&domain.HomeworkSubmission{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected only the valid row, got %d", n)
	}
}

func TestImport_IgnoresNonInsertStatements(t *testing.T) {
	db := newTestDB(t)

	artifact := strings.Join([]string{
		"SET client_encoding = 'UTF8';",
		"CREATE EXTENSION IF NOT EXISTS \"pgcrypto\";",
		"DROP TABLE homework_submissions;",
		"INSERT INTO admin_settings (id, deepseek_enabled, gpt5_enabled, openrouter_api_key, imgbb_api_key, created_at, updated_at) VALUES",
		"('s-1', true, false, '', '', '2025-03-10T08:00:00.000+00:00', '2025-03-10T08:00:00.000+00:00');",
	}, "\n")

	res, err := Import(context.Background(), db, artifact)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Fatalf("only the INSERT should be replayed: %+v", res)
	}

	// The DROP TABLE must have been filtered out, not executed.
	var n int64
	if err := db.Model(&domain.HomeworkSubmission{}).Count(&n).Error; err != nil {
		t.Fatalf("submissions table gone: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements("INSERT INTO t VALUES ('a;b');INSERT INTO t VALUES ('it''s');")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "'a;b'") {
		t.Fatalf("semicolon inside literal split the statement: %q", stmts[0])
	}
	if !strings.Contains(stmts[1], "'it''s'") {
		t.Fatalf("escaped quote mishandled: %q", stmts[1])
	}

	// Unterminated literal swallows the rest into a single statement.
	stmts = SplitStatements("INSERT INTO t VALUES ('open; INSERT INTO t VALUES ('x');")
	if len(stmts) != 1 {
		t.Fatalf("unterminated literal should yield one statement, got %d: %#v", len(stmts), stmts)
	}
}

func TestRoundTrip_HomeworkScenario(t *testing.T) {
	src := newTestDB(t)
	dst := newTestDB(t)

	created := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if err := src.Create(&domain.HomeworkSubmission{
		ID: "hw-sc", Subject: "Toán", Content: "2+2=5",
		Analysis:  datatypes.JSON(`{"hasErrors":true,"errors":["2+2=5 sai"],"explanations":["2+2=4"]}`),
		CreatedAt: created,
	}).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	if err := src.Create(&domain.HomeworkChatContext{
		ID: "ctx-sc", HomeworkID: "hw-sc", Subject: "Toán", HomeworkContent: "2+2=5",
		Analysis:  datatypes.JSON(`{"hasErrors":true,"errors":["2+2=5 sai"],"explanations":["2+2=4"]}`),
		Questions: datatypes.JSON(`[{"question":"Vì sao sai?","answer":"Vì phép cộng đúng là 4","timestamp":"2025-03-10T08:05:00.000+00:00"}]`),
		CreatedAt: created, UpdatedAt: created.Add(5 * time.Minute),
	}).Error; err != nil {
		t.Fatalf("seed context: %v", err)
	}

	artifact, err := Export(context.Background(), src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := Import(context.Background(), dst, artifact); err != nil {
		t.Fatalf("import: %v", err)
	}

	var hctx domain.HomeworkChatContext
	if err := dst.Where("homework_id = ?", "hw-sc").First(&hctx).Error; err != nil {
		t.Fatalf("load context: %v", err)
	}
	qs, err := hctx.DecodeQuestions()
	if err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qs))
	}
	if qs[0].Question != "Vì sao sai?" || qs[0].Answer != "Vì phép cộng đúng là 4" {
		t.Fatalf("Q&A corrupted: %+v", qs[0])
	}
	if qs[0].Timestamp != "2025-03-10T08:05:00.000+00:00" {
		t.Fatalf("timestamp not preserved: %q", qs[0].Timestamp)
	}
}
