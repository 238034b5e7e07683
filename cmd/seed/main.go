// seed inserts a development admin identity into the local replica schema.
// Idempotent: skips inserts if the admin login already exists. Never point it
// at the production user store.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"ndamli-federation/provider/internal/config"
	"ndamli-federation/provider/internal/db"
	"ndamli-federation/provider/internal/security"
)

const (
	adminLogin    = "admin"
	adminPassword = "admin"
	adminEmail    = "admin@localhost"
)

var authorities = []string{"ROLE_ADMIN", "ROLE_USER"}

// randomKey fits the 20-character activation/reset key columns.
func randomKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; seed targets the local replica schema only")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	var existing int64
	err = conn.QueryRowContext(ctx, `SELECT id FROM jhi_user WHERE login = $1`, adminLogin).Scan(&existing)
	if err == nil {
		log.Printf("Seed already applied (login %q exists). Skipping.", adminLogin)
		os.Exit(0)
	}
	if err != sql.ErrNoRows {
		log.Fatalf("seed check: %v", err)
	}

	passwordHash, err := security.Encode(adminPassword, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range authorities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jhi_authority (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			log.Fatalf("create authority %s: %v", name, err)
		}
	}

	now := time.Now().UTC()
	var userID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO jhi_user (
			login, password_hash, first_name, last_name, email,
			activated, locked, has_password_updated, lang_key,
			activation_key, reset_key, reset_date
		) VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, TRUE, 'fr', $6, $7, $8)
		RETURNING id`,
		adminLogin, passwordHash, "Administrator", "Administrator", adminEmail,
		randomKey(), randomKey(), now,
	).Scan(&userID)
	if err != nil {
		log.Fatalf("create admin user: %v", err)
	}

	for _, name := range authorities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jhi_user_authority (user_id, authority_name) VALUES ($1, $2)`, userID, name); err != nil {
			log.Fatalf("grant authority %s: %v", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", adminLogin, adminPassword)
}
