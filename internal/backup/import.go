package backup

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// FailedStatement records one INSERT that could not be replayed during
// import, together with the database error it produced.
type FailedStatement struct {
	Statement string `json:"statement"`
	Error     string `json:"error"`
}

// ImportResult reports the outcome of an import: how many INSERT statements
// the artifact contained, how many replayed cleanly, and which ones failed.
// A partially-failed import is still a successful operation; callers decide
// whether the failure list is acceptable.
type ImportResult struct {
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Failed    []FailedStatement `json:"failed,omitempty"`
}

// Import replaces the current database content with the state encoded in the
// given SQL artifact.
//
// The artifact is reduced to its INSERT statements: comment lines are
// stripped, the text is split on statement terminators with a quote-aware
// scanner, and schema/index statements are ignored (the target schema is
// assumed to exist). All managed tables are then wiped in dependency order
// and each INSERT replayed in file order. A failing statement is logged and
// skipped; the rest of the import continues.
//
// The destructive wipe is not rolled back when replay partially fails. This
// is a disaster-recovery tool, not a transactional migration tool: once the
// wipe has run, the only way back is importing a valid artifact.
func Import(ctx context.Context, db *gorm.DB, sqlText string) (*ImportResult, error) {
	inserts := insertStatements(sqlText)
	log.Info().Int("statements", len(inserts)).Msg("starting database import")

	// Destructive phase: children before parents.
	for _, table := range []string{
		"homework_chat_context",
		"chat_conversations",
		"generated_tests",
		"homework_submissions",
		"admin_settings",
	} {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return nil, err
		}
	}

	res := &ImportResult{Attempted: len(inserts)}
	for _, stmt := range inserts {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			log.Warn().Err(err).Str("statement", truncateStmt(stmt)).Msg("skipping failed import statement")
			res.Failed = append(res.Failed, FailedStatement{
				Statement: truncateStmt(stmt),
				Error:     err.Error(),
			})
			continue
		}
		res.Succeeded++
	}

	log.Info().
		Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).
		Int("failed", len(res.Failed)).
		Msg("database import completed")
	return res, nil
}

// insertStatements reduces raw SQL text to the list of INSERT statements it
// contains, in file order.
func insertStatements(sqlText string) []string {
	cleaned := stripComments(sqlText)
	var out []string
	for _, stmt := range SplitStatements(cleaned) {
		if strings.HasPrefix(strings.ToLower(stmt), "insert") {
			out = append(out, stmt)
		}
	}
	return out
}

// stripComments drops every line whose trimmed form starts with the SQL
// comment marker.
func stripComments(sqlText string) string {
	lines := strings.Split(sqlText, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// SplitStatements splits SQL text into individual statements on semicolons,
// honoring single-quoted string literals: a semicolon inside a quoted value
// (including values with doubled-quote escapes) does not end a statement.
// Statements are trimmed; empty candidates are dropped. An unterminated
// literal swallows the remaining text into the final statement, which then
// simply fails at replay time.
func SplitStatements(sqlText string) []string {
	var (
		out     []string
		current strings.Builder
		inQuote bool
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '\'':
			if inQuote && i+1 < len(runes) && runes[i+1] == '\'' {
				// Escaped quote inside a literal; consume both.
				current.WriteRune(ch)
				current.WriteRune(runes[i+1])
				i++
				continue
			}
			inQuote = !inQuote
			current.WriteRune(ch)
		case ch == ';' && !inQuote:
			flush()
		default:
			current.WriteRune(ch)
		}
	}
	flush()
	return out
}

// truncateStmt caps statement text in logs and results.
func truncateStmt(stmt string) string {
	const max = 120
	if len(stmt) <= max {
		return stmt
	}
	return stmt[:max] + "..."
}
