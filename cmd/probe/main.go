// probe validates the active federation configuration end to end: secret
// store health, credential resolution, pooled connect, and a row count
// against the user store. Exit code 0 means every step passed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"ndamli-federation/provider/internal/config"
	"ndamli-federation/provider/internal/federation"
	"ndamli-federation/provider/internal/health"
	"ndamli-federation/provider/internal/registry"
	"ndamli-federation/provider/internal/telemetry"
	otelsetup "ndamli-federation/provider/internal/telemetry/otel"
	"ndamli-federation/provider/internal/vault"
)

func main() {
	login := flag.String("login", "", "Optionally resolve this login through the full federation path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "ndamli-federation-probe", false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		time.Sleep(telemetry.ShutdownDrainDuration)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	var (
		client *vault.Client
		source federation.CredentialSource
	)
	if cfg.UsesVault() {
		client = vault.NewClient(cfg.VaultURL, cfg.VaultToken, cfg.CacheTTL())
		source = &federation.VaultSource{Client: client, SecretPath: cfg.VaultSecretPath}

		if !client.HealthCheck(ctx) {
			log.Printf("FAIL vault health: %s did not answer", cfg.VaultURL)
			os.Exit(1)
		}
		log.Printf("ok   vault health: %s", cfg.VaultURL)

		creds, err := client.GetDatabaseCredentials(ctx, cfg.VaultSecretPath)
		if err != nil {
			log.Printf("FAIL vault credentials: %v", err)
			os.Exit(1)
		}
		log.Printf("ok   vault credentials: %s (age %s)", creds.String(), creds.Age(time.Now()))
	} else {
		source = &federation.StaticSource{DSN: cfg.DatabaseURL}
		log.Printf("ok   static credentials: DATABASE_URL configured")
	}

	reg := registry.New(registry.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnectTimeout:  cfg.ConnectTimeout(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime(),
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	})
	defer reg.Shutdown()

	handle, err := reg.HandleFor(ctx, source.Key(), source.Credentials)
	if err != nil {
		log.Printf("FAIL pooled connect: %v", err)
		os.Exit(1)
	}
	log.Printf("ok   pooled connect: handle for %s", source.Key())

	checker := &health.Checker{DB: handle}
	if cfg.UsesVault() {
		checker.Vault = client
	}
	if status := checker.Check(ctx); !status.Healthy() {
		log.Printf("FAIL combined health: vault=%v database=%v", status.Vault, status.Database)
		os.Exit(1)
	}

	var count int64
	if err := handle.QueryRowContext(ctx, `SELECT COUNT(*) FROM jhi_user`).Scan(&count); err != nil {
		log.Printf("FAIL user store query: %v", err)
		os.Exit(1)
	}
	log.Printf("ok   user store: %d identities visible", count)

	if *login != "" {
		emitter := otelsetup.NewEventEmitter(providers.LoggerProvider)
		coordinator := federation.NewCoordinator(reg, source, emitter)
		identity, err := coordinator.ResolveByLogin(ctx, *login)
		if err != nil {
			log.Printf("FAIL resolve %q: %v", *login, err)
			os.Exit(1)
		}
		if identity == nil {
			log.Printf("ok   resolve %q: not found", *login)
		} else {
			log.Printf("ok   resolve %q: id=%d authorities=%v", *login, identity.ID, identity.Authorities)
		}
	}

	log.Println("configuration valid")
}
