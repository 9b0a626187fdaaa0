// Command issue-token creates an account if needed and prints a token for
// it. It is how the first admin gets in:
//
//	JWT_SECRET=... go run ./cmd/issue-token -email admin@example.com -role admin
//
// The server must run with the same JWT_SECRET and DB_PATH.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/tapcard/internal/auth"
	"github.com/sakif/tapcard/internal/config"
	sqliteRepo "github.com/sakif/tapcard/internal/repository/sqlite"
	"github.com/sakif/tapcard/internal/service"
)

func main() {
	email := flag.String("email", "", "account email (required)")
	name := flag.String("name", "", "display name for a new account")
	role := flag.String("role", "user", "role for a new account: admin or user")
	flag.Parse()

	if err := run(*email, *name, *role); err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}
}

func run(email, name, role string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set to the server's secret")
	}
	logger := cfg.Logger(os.Stderr)

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	accounts := service.NewAccountService(db, tokens, logger)
	res, err := accounts.EnsureAccount(context.Background(), service.NewAccount{Email: email, Name: name, Role: role})
	if err != nil {
		return err
	}

	logger.Info("token issued",
		slog.Int64("userID", res.User.ID),
		slog.String("role", res.User.Role),
		slog.Duration("ttl", auth.DefaultTTL),
	)
	fmt.Println(res.Token)
	return nil
}
