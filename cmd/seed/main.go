package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		count  int
		tokens int
	)
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flags.IntVarP(&count, "count", "n", 40, "number of demo profiles to create")
	flags.IntVar(&tokens, "tokens", 4, "print dev bearer tokens for the first N profiles")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("--count must be positive, got %d", count)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}

	profiles, err := db.SeedTestData(database, count)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}
	log.Info("seeding completed", "profiles", len(profiles))

	identity := session.NewIdentity(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, clock.Real())
	for _, p := range profiles[:min(tokens, len(profiles))] {
		token, err := identity.Issue(p.ID)
		if err != nil {
			return fmt.Errorf("issue token for %d: %w", p.ID, err)
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", p.ID, p.Intent, p.FullName, token)
	}
	return nil
}
