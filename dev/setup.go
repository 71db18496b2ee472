package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"pricewise-backend/internal/components/db"
	"pricewise-backend/pkg/migrations"
)

const catalogDB = "<dev_state>/pricewise.db"

func cmd(name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("$ %s %s\n", name, strings.Join(args, " "))
	err := cmd.Run()
	if err != nil {
		os.Exit(1)
	}
}

func CreateLocalStack() error {
	err := os.Chdir("dev/local_stack")
	if err != nil {
		return err
	}
	cmd("docker", "compose", "up", "-d")
	return os.Chdir("../..")
}

// CreateCatalogDB creates the catalog database with the current schema, an
// existing database is migrated in place.
func CreateCatalogDB() error {
	fmt.Println("creating database at", catalogDB)
	database, err := migrations.Config{File: catalogDB}.OpenAndMigrate(db.Schema)
	if err != nil {
		return err
	}
	return database.Close()
}

func PrintConfigLocations(stack bool) {
	slog.Info("config.json5 points at the dev database, put overrides in config.local.json5")
	if stack {
		slog.Info(
			"local stack started, add these to config.local.json5 to use it",
			"redis", `{ addr: "localhost:6379" }`,
			"kafka", `{ brokers: ["localhost:9092"], topic: "pricewise.runs" }`,
			"smtp", `{ server: "localhost", port: 1025, recipients: ["dev@localhost"] }`,
		)
	}
}
