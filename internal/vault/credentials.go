package vault

import "time"

// Credentials is a resolved database credential bundle from Vault.
// Bundles are immutable snapshots; a refetch supersedes rather than mutates.
type Credentials struct {
	URL       string
	Username  string
	Password  string
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the bundle is past its TTL at the given instant.
func (c Credentials) Expired(now time.Time) bool {
	return now.Sub(c.FetchedAt) >= c.TTL
}

// Age returns how long ago the bundle was fetched.
func (c Credentials) Age(now time.Time) time.Duration {
	return now.Sub(c.FetchedAt)
}

// String renders the bundle for logs without exposing the password.
func (c Credentials) String() string {
	return "vault.Credentials{url=" + c.URL + ", username=" + c.Username + ", password=***}"
}
