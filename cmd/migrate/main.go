package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"roomledger.org/internal/migrate"
	"roomledger.org/internal/obs"
)

const usage = "usage: migrate [-dsn DSN] [-seeds DIR] [-timeout 30s] up|down|seed|status"

func main() {
	log := obs.Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Fatal("load .env")
	}
	var (
		dsn       = flag.String("dsn", os.Getenv("ROOMLEDGER_PG_DSN"), "PostgreSQL DSN")
		seedsPath = flag.String("seeds", "", "Optional directory of SQL seed files")
		timeout   = flag.Duration("timeout", 30*time.Second, "Overall deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ROOMLEDGER_PG_DSN")
	}
	if flag.NArg() != 1 {
		log.Fatal(usage)
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(db, migrate.Schema(), opts...)

	if err := run(ctx, mgr, cmd, log); err != nil {
		log.WithError(err).WithField("command", cmd).Fatal("migrate failed")
	}
}

func run(ctx context.Context, mgr *migrate.Manager, cmd string, log *logrus.Logger) error {
	switch cmd {
	case "up":
		applied, err := mgr.Up(ctx)
		for _, name := range applied {
			log.WithField("migration", name).Info("applied")
		}
		if err == nil && len(applied) == 0 {
			log.Info("schema up to date")
		}
		return err
	case "down":
		name, err := mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info("nothing to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		log.WithField("migration", name).Info("rolled back")
		return nil
	case "seed":
		return mgr.Seed(ctx)
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		applied := make(map[string]bool, len(history))
		for _, name := range history {
			applied[name] = true
			fmt.Println("applied ", name)
		}
		pending, err := fs.Glob(migrate.Schema(), "*.up.sql")
		if err != nil {
			return err
		}
		for _, name := range pending {
			if !applied[name] {
				fmt.Println("pending ", name)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}
}
