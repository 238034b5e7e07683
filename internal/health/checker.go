// Package health combines liveness probes for the federation provider's
// upstream dependencies (Vault and the user store).
package health

import "context"

// VaultProber reports whether the secret store answers its health endpoint.
type VaultProber interface {
	HealthCheck(ctx context.Context) bool
}

// Pinger reports whether a database handle is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Status is one combined probe result.
type Status struct {
	// Vault is true when the secret store is reachable, or when the
	// deployment uses a static DSN and no Vault probe applies.
	Vault bool
	// Database is true when the user store answered a ping.
	Database bool
}

// Healthy reports whether every probed dependency answered.
func (s Status) Healthy() bool {
	return s.Vault && s.Database
}

// Checker probes the configured dependencies. Either field may be nil when
// the dependency does not apply; a nil Vault prober counts as healthy (static
// DSN deployments), a nil database counts as unhealthy.
type Checker struct {
	Vault VaultProber
	DB    Pinger
}

// Check probes each dependency once. It never returns an error; failures are
// reflected in the Status fields.
func (c *Checker) Check(ctx context.Context) Status {
	status := Status{Vault: true}
	if c.Vault != nil {
		status.Vault = c.Vault.HealthCheck(ctx)
	}
	if c.DB != nil {
		status.Database = c.DB.PingContext(ctx) == nil
	}
	return status
}
