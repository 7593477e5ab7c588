// Command migrate manages the explorer's database schemas.
//
// Usage:
//
//	migrate -db postgres -action up
//	migrate -db postgres -action down -steps 2
//	migrate -db postgres -action version
//	migrate -db clickhouse -action up
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/chain-explorer/internal/config"
	"github.com/chain-explorer/internal/storage"
)

func main() {
	var (
		dbType = flag.String("db", "postgres", "Target database: postgres or clickhouse")
		action = flag.String("action", "up", "Schema action: up, down or version")
		steps  = flag.Int("steps", 1, "Number of migrations to revert with -action down")
		path   = flag.String("path", "", "Migrations directory (defaults to migrations/<db>)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	migrationsPath := *path
	if migrationsPath == "" {
		migrationsPath = "migrations/" + *dbType
	}

	switch *dbType {
	case "postgres":
		err = migratePostgres(cfg, *action, migrationsPath, *steps)
	case "clickhouse":
		err = migrateClickHouse(cfg, *action, migrationsPath)
	default:
		log.Fatalf("Unknown database %q (want postgres or clickhouse)", *dbType)
	}
	if err != nil {
		log.Fatalf("Migration failed for %s: %v", *dbType, err)
	}
}

func migratePostgres(cfg *config.Config, action, migrationsPath string, steps int) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.Database,
	)

	switch action {
	case "up":
		log.Printf("Applying Postgres migrations from %s", migrationsPath)
		if err := storage.RunMigrations(databaseURL, migrationsPath); err != nil {
			return err
		}
		log.Println("Postgres schema is up to date")

	case "down":
		log.Printf("Reverting %d Postgres migration(s)", steps)
		if err := storage.RollbackMigrations(databaseURL, migrationsPath, steps); err != nil {
			return err
		}
		log.Println("Postgres rollback complete")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, migrationsPath)
		if err != nil {
			return err
		}
		log.Printf("Postgres schema version %d (dirty: %v)", version, dirty)

	default:
		return fmt.Errorf("unknown action %q (want up, down or version)", action)
	}

	return nil
}

func migrateClickHouse(cfg *config.Config, action, migrationsPath string) error {
	// The ClickHouse schema is append-only; there is nothing to revert
	if action != "up" {
		return fmt.Errorf("clickhouse supports only -action up, got %q", action)
	}

	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", migrationsPath)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing ClickHouse connection: %v", err)
		}
	}()

	log.Printf("Applying ClickHouse migrations from %s", migrationsPath)
	if err := storage.RunClickHouseMigrations(db, migrationsPath); err != nil {
		return err
	}
	log.Println("ClickHouse schema is up to date")

	return nil
}
