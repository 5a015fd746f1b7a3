package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"printdesk/internal/config"
	"printdesk/internal/database"
	"printdesk/internal/database/migrations"
)

func main() {
	var (
		command = flag.String("command", "", "Migration command: up, down, version, status, validate, create")
		steps   = flag.Int("steps", 0, "Number of migration steps (0 means all for up, 1 for down)")
		name    = flag.String("name", "", "Migration name (for create)")
	)
	flag.Parse()

	if *command == "" {
		fmt.Println("Usage: migrate -command [up|down|version|status|validate|create] [options]")
		fmt.Println("Commands:")
		fmt.Println("  up        - Apply pending migrations")
		fmt.Println("  down      - Roll back migrations")
		fmt.Println("  version   - Show current migration version")
		fmt.Println("  status    - Show applied and pending migrations")
		fmt.Println("  validate  - Check migration files for gaps and missing pairs")
		fmt.Println("  create    - Create new migration files (-name required)")
		fmt.Println("Options:")
		fmt.Println("  -steps N  - Number of steps for up/down")
		fmt.Println("  -name S   - Migration name for create")
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := config.NewConfig()

	var migrator *migrations.Migrator
	if *command == "create" || *command == "validate" {
		// No database needed for these.
		migrator = migrations.NewMigrator(nil)
	} else {
		m, cleanup, err := connect(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer cleanup()
		migrator = m
	}

	switch *command {
	case "up":
		if err := migrator.Up(ctx, *steps); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("Migrations applied")
	case "down":
		n := *steps
		if n == 0 {
			n = 1
		}
		if err := migrator.Down(ctx, n); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("Migrations rolled back")
	case "version":
		version, dirty, err := migrator.Version(ctx)
		if err != nil {
			log.Fatalf("Failed to read version: %v", err)
		}
		fmt.Printf("Version: %d (dirty: %t)\n", version, dirty)
	case "status":
		status, err := migrator.GetStatus(ctx)
		if err != nil {
			log.Fatalf("Failed to read status: %v", err)
		}
		fmt.Printf("Current version: %d (latest: %d, dirty: %t)\n", status.Current, status.Latest, status.IsDirty)
		fmt.Printf("Applied: %d, pending: %d\n", len(status.Applied), len(status.Pending))
		for _, m := range status.Pending {
			fmt.Printf("  pending: %d_%s\n", m.Version, m.Name)
		}
	case "validate":
		if err := migrator.ValidateMigrations(); err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		fmt.Println("Migration files are valid")
	case "create":
		if *name == "" {
			log.Fatal("-name is required for create")
		}
		if err := migrator.CreateMigration(*name); err != nil {
			log.Fatalf("Failed to create migration: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}

func connect(ctx context.Context, cfg *config.Config) (*migrations.Migrator, func(), error) {
	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.URL()); err != nil {
		return nil, nil, err
	}

	migrator := migrations.NewMigrator(db.Pool)
	if err := migrator.Initialize(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return migrator, db.Close, nil
}
