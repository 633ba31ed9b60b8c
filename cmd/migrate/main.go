package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

type command struct {
	needsDB bool
	run     func(ctx context.Context, sqlDB *sql.DB, opts options) (any, error)
}

var commands = map[string]command{
	"up": {needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (any, error) {
		return migrate.Up(ctx, sqlDB, opts.dir)
	}},
	"down": {needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (any, error) {
		return migrate.Down(ctx, sqlDB, opts.dir)
	}},
	"status": {needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (any, error) {
		return migrate.Status(ctx, sqlDB, opts.dir)
	}},
	"version": {needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (any, error) {
		if opts.version == "" {
			return nil, errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}},
	"create": {run: func(_ context.Context, _ *sql.DB, opts options) (any, error) {
		if opts.name == "" {
			return nil, errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return nil, err
		}
		return map[string]string{"created": path}, nil
	}},
	"validate": {run: func(_ context.Context, _ *sql.DB, opts options) (any, error) {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return nil, fmt.Errorf("migration validation failed: %w", err)
		}
		return map[string]bool{"valid": true}, nil
	}},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmdName := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmdName)
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmdName,
		"dir": opts.dir,
	})

	var sqlDB *sql.DB
	if cmd.needsDB {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		requireResource(ctx, logg, "database", err)
		defer dbClient.Close()

		sqlDB, err = dbClient.SQL()
		requireResource(ctx, logg, "sql database", err)
	}

	logg.Info(ctx, "migrate ready")
	result, err := cmd.run(ctx, sqlDB, opts)
	if err != nil {
		logg.Error(ctx, "migrate command failed", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
