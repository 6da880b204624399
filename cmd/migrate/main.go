// Command migrate applies or rolls back the articles/usage_monthly
// schema via golang-migrate, reading DATABASE_URL the same way the
// server does. Grounded on the teacher's cmd/migrate/main.go CLI shape.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"gdelt-article-cache/internal/database"
)

func main() {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	config := &database.MigrationConfig{
		DatabaseURL:    dbURL,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
	}

	runner, err := database.NewMigrationRunner(config)
	if err != nil {
		log.Fatalf("failed to create migration runner: %v", err)
	}
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		if err := runner.Up(); err != nil {
			log.Fatalf("up failed: %v", err)
		}
	case "down":
		if err := runner.Down(); err != nil {
			log.Fatalf("down failed: %v", err)
		}
	case "down-all":
		if err := runner.DownAll(); err != nil {
			log.Fatalf("down-all failed: %v", err)
		}
	case "version":
		status, err := runner.Version()
		if err != nil {
			log.Fatalf("version failed: %v", err)
		}
		fmt.Printf("version: %d  dirty: %v  applied: %v\n", status.Version, status.Dirty, status.Applied)
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version: %s", os.Args[2])
		}
		if err := runner.Force(version); err != nil {
			log.Fatalf("force failed: %v", err)
		}
	case "help":
		printUsage()
	default:
		log.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`
gdelt-article-cache migration tool

Usage:
  migrate <command> [arguments]

Commands:
  up              Apply all pending migrations
  down            Rollback the last migration
  down-all        Rollback all migrations
  version         Show current migration version
  force <N>       Force version to N (fix a dirty state)
  help            Show this help message

Environment Variables:
  DATABASE_URL    PostgreSQL connection URL (required)
  MIGRATIONS_PATH Path to the migrations directory (default: ./migrations)
`)
}
