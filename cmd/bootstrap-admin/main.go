package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"ecportal.org/internal/auth"
	"ecportal.org/internal/obs"
	"ecportal.org/internal/store/pg"
)

func main() {
	obs.InitLogger(obs.LogConfig{Format: "console"})
	if err := run(); err != nil {
		obs.Logger().Fatal().Err(err).Msg("bootstrap admin")
	}
}

func run() error {
	log := obs.Logger()
	var (
		dsn      = flag.String("dsn", os.Getenv("ECP_DATABASE_DSN"), "PostgreSQL DSN")
		name     = flag.String("name", "Administrator", "Display name")
		email    = flag.String("email", os.Getenv("ECP_BOOTSTRAP_EMAIL"), "Login email")
		password = flag.String("password", os.Getenv("ECP_BOOTSTRAP_PASSWORD"), "Initial password")
	)
	flag.Parse()

	if *dsn == "" || *email == "" || *password == "" {
		return errors.New("dsn, email and password are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	accounts, err := auth.NewService(store.Users())
	if err != nil {
		return fmt.Errorf("account service: %w", err)
	}
	user, err := accounts.CreateUser(ctx, auth.NewUser{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Role:     auth.RoleAdmin,
		Active:   true,
	})
	if errors.Is(err, auth.ErrConflict) {
		log.Warn().Str("email", *email).Msg("account already exists; nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info().Str("id", user.ID).Str("email", user.Email).Msg("admin account created")
	return nil
}
