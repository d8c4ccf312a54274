package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketcheckout/pkg/config"
	"github.com/angelmondragon/marketcheckout/pkg/db"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

type command struct {
	needsDB bool
	run     func(ctx context.Context, runner *migrate.Runner, opts options) error
}

var commands = map[string]command{
	"up": {needsDB: true, run: func(ctx context.Context, runner *migrate.Runner, _ options) error {
		applied, err := runner.Up(ctx)
		fmt.Printf("applied %d migration(s)\n", applied)
		return err
	}},
	"down": {needsDB: true, run: func(ctx context.Context, runner *migrate.Runner, _ options) error {
		return runner.Down(ctx)
	}},
	"status": {needsDB: true, run: func(ctx context.Context, runner *migrate.Runner, _ options) error {
		rows, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, row.Version, row.File)
		}
		return nil
	}},
	"version": {needsDB: true, run: func(ctx context.Context, runner *migrate.Runner, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version")
		}
		return runner.To(ctx, opts.version)
	}},
	"create": {run: func(_ context.Context, _ *migrate.Runner, opts options) error {
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {run: func(_ context.Context, _ *migrate.Runner, opts options) error {
		return migrate.ValidateDir(opts.dir)
	}},
}

// source prefers the embedded set unless -dir points somewhere else.
func source(dir string) fs.FS {
	if dir == "" || dir == migrate.DefaultDir {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	name := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cmd, ok := commands[*name]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *name)
		os.Exit(2)
	}

	if err := run(logg, *name, cmd, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", *name, err)
		os.Exit(1)
	}
}

func run(logg *logger.Logger, name string, cmd command, opts options) error {
	if !cmd.needsDB {
		return cmd.run(context.Background(), nil, opts)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		return errors.New("goose migrations target postgres; sqlite schemas are built by dev auto-migrate")
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": name,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, false, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, source(opts.dir))
	if err != nil {
		return err
	}
	logg.Info(ctx, "running migration command")
	return cmd.run(ctx, runner, opts)
}
