package store

import (
	"context"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the bundled metadata-table migrations in filename
// order. Every script guards its own changes with existence checks, so
// re-running the full set is safe. Each file runs in one transaction.
func (s *Store) RunMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		for _, stmt := range SplitStatements(string(raw)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback() //nolint:errcheck
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		log.Printf("Migration applied: %s", name)
	}
	return nil
}

// SplitStatements splits a migration script into executable statements.
// Semicolons inside single-quoted strings and dollar-quoted blocks
// ($$...$$ or $tag$...$tag$) are not treated as separators, so procedural
// DO blocks survive intact. Line comments and empty fragments are dropped.
func SplitStatements(script string) []string {
	var (
		stmts     []string
		buf       strings.Builder
		inQuote   bool
		dollarTag string // non-empty while inside a dollar-quoted block
	)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if dollarTag != "" {
			buf.WriteByte(c)
			if c == '$' && strings.HasSuffix(buf.String(), dollarTag) {
				dollarTag = ""
			}
			continue
		}

		if inQuote {
			buf.WriteByte(c)
			if c == '\'' {
				// '' is an escaped quote, stay inside the string
				if i+1 < len(script) && script[i+1] == '\'' {
					buf.WriteByte(script[i+1])
					i++
				} else {
					inQuote = false
				}
			}
			continue
		}

		switch c {
		case '\'':
			inQuote = true
			buf.WriteByte(c)
		case '$':
			if tag, ok := dollarQuoteTag(script[i:]); ok {
				dollarTag = tag
				buf.WriteString(tag)
				i += len(tag) - 1
			} else {
				buf.WriteByte(c)
			}
		case '-':
			// skip line comments outside of quoted regions
			if i+1 < len(script) && script[i+1] == '-' {
				for i < len(script) && script[i] != '\n' {
					i++
				}
				buf.WriteByte('\n')
			} else {
				buf.WriteByte(c)
			}
		case ';':
			if stmt := strings.TrimSpace(buf.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			buf.Reset()
		default:
			buf.WriteByte(c)
		}
	}

	if stmt := strings.TrimSpace(buf.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts
}

// dollarQuoteTag reports whether s starts with a dollar-quote opener such
// as $$ or $body$, returning the full tag.
func dollarQuoteTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}
