// migrate applies the embedded replica-schema migrations; use with
// go run ./cmd/migrate. Targets the local replica only, never the production
// user store.
package main

import (
	"flag"
	"fmt"
	"os"

	"ndamli-federation/provider/internal/config"
	"ndamli-federation/provider/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; migrations run against the local replica, not a Vault-resolved store")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
