package main

import (
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"agri-auction/internal/config"
	"agri-auction/pkg/logger"
)

func main() {
	log := logger.New()

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		log.Fatal("usage: migrate <up|down|version>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.New(migrationsPath, databaseURL(cfg.MySQL.DSN))
	if err != nil {
		log.Fatal("Failed to create migrate instance", "error", err)
	}
	defer func() { _, _ = m.Close() }()

	switch command := args[0]; command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No pending migrations")
			return
		}
		if err != nil {
			log.Fatal("Migration up failed", "error", err)
		}
		log.Info("Migrations applied")

	case "down":
		err = m.Steps(-1)
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to roll back")
			return
		}
		if err != nil {
			log.Fatal("Migration down failed", "error", err)
		}
		log.Info("Migration rolled back")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations applied yet")
			return
		}
		if err != nil {
			log.Fatal("Failed to read migration version", "error", err)
		}
		log.Info("Current migration version", "version", version, "dirty", dirty)

	default:
		log.Fatal("Unknown command", "command", command)
	}
}

// databaseURL turns the driver DSN into the URL form migrate expects. The
// schema file holds several statements, so multiStatements is forced on.
func databaseURL(dsn string) string {
	url := strings.TrimPrefix(dsn, "mysql://")
	if !strings.Contains(url, "multiStatements=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "multiStatements=true"
	}
	return "mysql://" + url
}
