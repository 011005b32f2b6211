package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|pending|to|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the bundled set")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	_ = godotenv.Load()

	// create and validate work on files only and need no config.
	switch *cmd {
	case "create":
		out := *dir
		if out == "" {
			out = migrate.SourceDir
		}
		path, err := migrate.Create(out, *name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(migrate.Validate(source(*dir)), "validate migrations")
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, false, logg)
	exitOn(err, "connect database")
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(err, "sql handle")

	runner, err := migrate.NewRunner(sqlDB, source(*dir))
	exitOn(err, "load migrations")

	var versions []int64
	switch *cmd {
	case "up":
		versions, err = runner.Up(ctx)
	case "down":
		versions, err = runner.Down(ctx)
	case "pending":
		versions, err = runner.Pending(ctx)
	case "to":
		v, perr := strconv.ParseInt(*target, 10, 64)
		exitOn(perr, "parse -version")
		versions, err = runner.To(ctx, v)
	default:
		exitOn(fmt.Errorf("unknown -cmd %q", *cmd), "dispatch")
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "versions", versions), "migration finished")
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Bundled()
	}
	return os.DirFS(dir)
}

func exitOn(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
