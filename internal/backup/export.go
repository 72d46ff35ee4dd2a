// Package backup implements the administrative database export/import
// engine. Export serializes every managed table into one portable,
// PostgreSQL-dialect SQL artifact; Import replays such an artifact back into
// the store after a destructive wipe.
//
// The artifact is plain UTF-8 text meant to be pasted into a SQL console or
// piped to a CLI client: a fixed, idempotent schema preamble (CREATE TABLE /
// CREATE INDEX ... IF NOT EXISTS) followed by one multi-row INSERT per
// non-empty table. Replaying it against a fresh compatible database and
// exporting again yields row-for-row equivalent data; that round-trip
// property is the engine's contract and is covered by tests.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/domain"
)

// Export builds the full SQL artifact for the current database state. It is a
// pure read plus string building, so it either succeeds atomically or fails
// without side effects.
func Export(ctx context.Context, db *gorm.DB) (string, error) {
	var b strings.Builder

	writeHeader(&b)
	writeSchema(&b)

	b.WriteString("-- Data Export\n\n")

	if err := writeSettings(ctx, db, &b); err != nil {
		return "", fmt.Errorf("export admin settings: %w", err)
	}
	if err := writeSubmissions(ctx, db, &b); err != nil {
		return "", fmt.Errorf("export homework submissions: %w", err)
	}
	if err := writeTests(ctx, db, &b); err != nil {
		return "", fmt.Errorf("export generated tests: %w", err)
	}
	if err := writeConversations(ctx, db, &b); err != nil {
		return "", fmt.Errorf("export chat conversations: %w", err)
	}
	if err := writeContexts(ctx, db, &b); err != nil {
		return "", fmt.Errorf("export homework chat context: %w", err)
	}

	b.WriteString("-- ============================================\n")
	b.WriteString("-- LIMVA DATABASE EXPORT COMPLETE\n")
	b.WriteString("-- ============================================\n")
	b.WriteString("-- Verify import with: SELECT COUNT(*) FROM admin_settings;\n")

	return b.String(), nil
}

func writeHeader(b *strings.Builder) {
	b.WriteString("-- ============================================\n")
	b.WriteString("-- LIMVA EDUCATIONAL PLATFORM - COMPLETE DATABASE EXPORT\n")
	fmt.Fprintf(b, "-- Exported on: %s\n", time.Now().UTC().Format(domain.TimeLayout))
	b.WriteString("-- This file contains complete schema and data\n")
	b.WriteString("-- Safe to run on any fresh PostgreSQL database\n")
	b.WriteString("-- ============================================\n\n")

	b.WriteString("-- Set client encoding for safety\n")
	b.WriteString("SET client_encoding = 'UTF8';\n")
	b.WriteString("SET standard_conforming_strings = on;\n\n")
}

func writeSchema(b *strings.Builder) {
	b.WriteString("-- Enable Required PostgreSQL Extensions\n")
	b.WriteString("CREATE EXTENSION IF NOT EXISTS \"pgcrypto\";\n")
	b.WriteString("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\";\n\n")

	b.WriteString("-- Drop existing tables (uncomment if you want clean import)\n")
	b.WriteString("-- DROP TABLE IF EXISTS homework_chat_context CASCADE;\n")
	b.WriteString("-- DROP TABLE IF EXISTS chat_conversations CASCADE;\n")
	b.WriteString("-- DROP TABLE IF EXISTS generated_tests CASCADE;\n")
	b.WriteString("-- DROP TABLE IF EXISTS homework_submissions CASCADE;\n")
	b.WriteString("-- DROP TABLE IF EXISTS admin_settings CASCADE;\n\n")

	b.WriteString("-- Admin Settings Table\n")
	b.WriteString(`CREATE TABLE IF NOT EXISTS admin_settings (
	id character varying NOT NULL DEFAULT gen_random_uuid(),
	deepseek_enabled boolean NOT NULL DEFAULT true,
	gpt5_enabled boolean NOT NULL DEFAULT false,
	openrouter_api_key text,
	imgbb_api_key text,
	created_at timestamp without time zone DEFAULT now(),
	updated_at timestamp without time zone DEFAULT now(),
	CONSTRAINT admin_settings_pkey PRIMARY KEY (id)
);` + "\n\n")

	b.WriteString("-- Homework Submissions Table\n")
	b.WriteString(`CREATE TABLE IF NOT EXISTS homework_submissions (
	id character varying NOT NULL DEFAULT gen_random_uuid(),
	subject character varying(50) NOT NULL,
	content text NOT NULL,
	image_url text,
	analysis jsonb,
	created_at timestamp without time zone DEFAULT now(),
	CONSTRAINT homework_submissions_pkey PRIMARY KEY (id)
);` + "\n\n")

	b.WriteString("-- Generated Tests Table\n")
	b.WriteString(`CREATE TABLE IF NOT EXISTS generated_tests (
	id character varying NOT NULL DEFAULT gen_random_uuid(),
	subject character varying(50) NOT NULL,
	difficulty character varying(20) NOT NULL,
	question_type character varying(30) NOT NULL,
	question_count integer NOT NULL,
	requirements text,
	questions jsonb NOT NULL,
	answers jsonb NOT NULL,
	created_at timestamp without time zone DEFAULT now(),
	CONSTRAINT generated_tests_pkey PRIMARY KEY (id)
);` + "\n\n")

	b.WriteString("-- Chat Conversations Table\n")
	b.WriteString(`CREATE TABLE IF NOT EXISTS chat_conversations (
	id character varying NOT NULL DEFAULT gen_random_uuid(),
	messages jsonb NOT NULL DEFAULT '[]'::jsonb,
	created_at timestamp without time zone DEFAULT now(),
	updated_at timestamp without time zone DEFAULT now(),
	CONSTRAINT chat_conversations_pkey PRIMARY KEY (id)
);` + "\n\n")

	b.WriteString("-- Homework Chat Context Table\n")
	b.WriteString(`CREATE TABLE IF NOT EXISTS homework_chat_context (
	id character varying NOT NULL DEFAULT gen_random_uuid(),
	homework_id character varying NOT NULL,
	subject character varying NOT NULL,
	homework_content character varying NOT NULL,
	analysis jsonb NOT NULL,
	questions jsonb NOT NULL DEFAULT '[]'::jsonb,
	created_at timestamp without time zone DEFAULT now(),
	updated_at timestamp without time zone DEFAULT now(),
	CONSTRAINT homework_chat_context_pkey PRIMARY KEY (id)
);` + "\n\n")

	b.WriteString("-- Create Indexes\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_homework_submissions_subject ON homework_submissions (subject);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_homework_submissions_created_at ON homework_submissions (created_at DESC);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_generated_tests_subject ON generated_tests (subject);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_generated_tests_created_at ON generated_tests (created_at DESC);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_chat_conversations_created_at ON chat_conversations (created_at DESC);\n")
	b.WriteString("CREATE UNIQUE INDEX IF NOT EXISTS ux_homework_chat_context_homework ON homework_chat_context (homework_id);\n\n")

	b.WriteString("-- Session Storage Table (for authentication)\n")
	b.WriteString(`CREATE TABLE IF NOT EXISTS sessions (
	sid character varying NOT NULL,
	sess jsonb NOT NULL,
	expire timestamp(6) without time zone NOT NULL,
	CONSTRAINT sessions_pkey PRIMARY KEY (sid)
);` + "\n\n")

	b.WriteString("-- Session table index\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_sessions_expire ON sessions (expire);\n\n")
}

func writeSettings(ctx context.Context, db *gorm.DB, b *strings.Builder) error {
	var rows []domain.AdminSettings
	if err := db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	b.WriteString("-- Admin Settings\n")
	b.WriteString("INSERT INTO admin_settings (id, deepseek_enabled, gpt5_enabled, openrouter_api_key, imgbb_api_key, created_at, updated_at) VALUES\n")
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, fmt.Sprintf("(%s, %t, %t, %s, %s, %s, %s)",
			quote(r.ID), r.DeepseekEnabled, r.Gpt5Enabled,
			quote(r.OpenRouterAPIKey), quote(r.ImgBBAPIKey),
			quoteTime(r.CreatedAt), quoteTime(r.UpdatedAt)))
	}
	b.WriteString(strings.Join(values, ",\n"))
	b.WriteString(";\n\n")
	return nil
}

func writeSubmissions(ctx context.Context, db *gorm.DB, b *strings.Builder) error {
	var rows []domain.HomeworkSubmission
	if err := db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	b.WriteString("-- Homework Submissions\n")
	b.WriteString("INSERT INTO homework_submissions (id, subject, content, image_url, analysis, created_at) VALUES\n")
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, fmt.Sprintf("(%s, %s, %s, %s, %s, %s)",
			quote(r.ID), quote(r.Subject), quote(r.Content), quote(r.ImageURL),
			quoteJSON(r.Analysis, "{}"), quoteTime(r.CreatedAt)))
	}
	b.WriteString(strings.Join(values, ",\n"))
	b.WriteString(";\n\n")
	return nil
}

func writeTests(ctx context.Context, db *gorm.DB, b *strings.Builder) error {
	var rows []domain.GeneratedTest
	if err := db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	b.WriteString("-- Generated Tests\n")
	b.WriteString("INSERT INTO generated_tests (id, subject, difficulty, question_type, question_count, requirements, questions, answers, created_at) VALUES\n")
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, fmt.Sprintf("(%s, %s, %s, %s, %d, %s, %s, %s, %s)",
			quote(r.ID), quote(r.Subject), quote(r.Difficulty), quote(r.QuestionType),
			r.QuestionCount, quote(r.Requirements),
			quoteJSON(r.Questions, "[]"), quoteJSON(r.Answers, "[]"),
			quoteTime(r.CreatedAt)))
	}
	b.WriteString(strings.Join(values, ",\n"))
	b.WriteString(";\n\n")
	return nil
}

func writeConversations(ctx context.Context, db *gorm.DB, b *strings.Builder) error {
	var rows []domain.ChatConversation
	if err := db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	b.WriteString("-- Chat Conversations\n")
	b.WriteString("INSERT INTO chat_conversations (id, messages, created_at, updated_at) VALUES\n")
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, fmt.Sprintf("(%s, %s, %s, %s)",
			quote(r.ID), quoteJSON(r.Messages, "[]"),
			quoteTime(r.CreatedAt), quoteTime(r.UpdatedAt)))
	}
	b.WriteString(strings.Join(values, ",\n"))
	b.WriteString(";\n\n")
	return nil
}

func writeContexts(ctx context.Context, db *gorm.DB, b *strings.Builder) error {
	var rows []domain.HomeworkChatContext
	if err := db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	b.WriteString("-- Homework Chat Context\n")
	b.WriteString("INSERT INTO homework_chat_context (id, homework_id, subject, homework_content, analysis, questions, created_at, updated_at) VALUES\n")
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s)",
			quote(r.ID), quote(r.HomeworkID), quote(r.Subject), quote(r.HomeworkContent),
			quoteJSON(r.Analysis, "{}"), quoteJSON(r.Questions, "[]"),
			quoteTime(r.CreatedAt), quoteTime(r.UpdatedAt)))
	}
	b.WriteString(strings.Join(values, ",\n"))
	b.WriteString(";\n\n")
	return nil
}

// quote renders s as a SQL string literal, doubling embedded single quotes.
// Absent optional fields render as the empty-string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteJSON renders a JSON column value as a SQL string literal, substituting
// def for empty columns. The stored bytes are already canonical JSON, so they
// only need quote escaping.
func quoteJSON(j datatypes.JSON, def string) string {
	if len(j) == 0 {
		return quote(def)
	}
	return quote(string(j))
}

// quoteTime renders t with the fixed ISO-8601 layout used across the
// platform.
func quoteTime(t time.Time) string {
	return quote(t.UTC().Format(domain.TimeLayout))
}
