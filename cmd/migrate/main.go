package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"ecportal.org/internal/migrate"
	"ecportal.org/internal/obs"
	"ecportal.org/internal/store/pg"
)

func main() {
	obs.InitLogger(obs.LogConfig{Format: "console"})
	if err := run(); err != nil {
		obs.Logger().Fatal().Err(err).Msg("migrate")
	}
}

func run() error {
	log := obs.Logger()
	var (
		dsn     = flag.String("dsn", os.Getenv("ECP_DATABASE_DSN"), "PostgreSQL DSN")
		table   = flag.String("table", "", "Migrations bookkeeping table (default schema_migrations)")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		return errors.New("missing DSN: provide via -dsn or ECP_DATABASE_DSN")
	}
	if len(flag.Args()) == 0 {
		return errors.New("usage: migrate [up|down|status|pending]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var opts []migrate.Option
	if *table != "" {
		opts = append(opts, migrate.WithMigrationsTable(*table))
	}
	mgr := migrate.NewManager(store.DB(), nil, opts...)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.Info().Str("migration", name).Msg("applied")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil && name != "" {
			log.Info().Str("migration", name).Msg("rolled back")
		}
	case "status", "pending":
		var names []string
		if cmd == "status" {
			names, err = mgr.Status(ctx)
		} else {
			names, err = mgr.Pending(ctx)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}
