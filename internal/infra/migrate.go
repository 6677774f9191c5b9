// README: Applies SQL migration files statement by statement.
package infra

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplyMigrationFile executes every statement in path. Statements are split
// on ';', so function bodies containing semicolons are not supported.
func ApplyMigrationFile(ctx context.Context, db *pgxpool.Pool, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	stmts := SplitSQL(StripSQLComments(string(content)))
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return i, fmt.Errorf("statement %d of %s: %w", i+1, path, err)
		}
	}
	return len(stmts), nil
}

func StripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func SplitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
