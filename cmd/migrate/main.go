package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/joho/godotenv/autoload"

	"github.com/sjperalta/schoolfees-api/internal/config"
)

func main() {
	var command string
	var version int
	var steps int
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, steps, force, version")
	flag.IntVar(&version, "v", -1, "Version for force command")
	flag.IntVar(&steps, "n", 1, "Number of migrations for steps command (negative rolls back)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	m, err := migrate.New(cfg.MigrationsPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migration up done")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration down done")
	case "steps":
		if err := m.Steps(steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration steps failed: %v", err)
		}
		log.Printf("Applied %d migration steps", steps)
	case "force":
		if version == -1 {
			log.Fatal("Version (-v) is required for force command")
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Migration force failed: %v", err)
		}
		log.Printf("Migration forced to version %d", version)
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Reading version failed: %v", err)
		}
		log.Printf("Schema version %d (dirty: %t)", v, dirty)
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
