package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are authored, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Result is one migration applied or rolled back.
type Result struct {
	Version   int64         `json:"version"`
	Path      string        `json:"path"`
	Direction string        `json:"direction"`
	Duration  time.Duration `json:"duration"`
}

// State is the applied state of one known migration.
type State struct {
	Version   int64     `json:"version"`
	Path      string    `json:"path"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// Migrations resolves dir to a migration set. DefaultDir maps to the files
// compiled into the binary.
func Migrations(dir string) (fs.FS, error) {
	if dir == "" || filepath.Clean(dir) == DefaultDir {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return os.DirFS(dir), nil
}

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := Migrations(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, dir string) ([]Result, error) {
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	applied, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	return results(applied), nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, dir string) ([]Result, error) {
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	rolled, err := provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return results([]*goose.MigrationResult{rolled}), nil
}

func Status(ctx context.Context, db *sql.DB, dir string) ([]State, error) {
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]State, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		out = append(out, State{
			Version:   st.Source.Version,
			Path:      filepath.Base(st.Source.Path),
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// MigrateToVersion moves the schema up or down until targetVersion is current.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) ([]Result, error) {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var moved []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		moved, err = provider.UpTo(ctx, target)
	default:
		moved, err = provider.DownTo(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return results(moved), nil
}

func results(in []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(in))
	for _, r := range in {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			Path:      filepath.Base(r.Source.Path),
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return out
}
