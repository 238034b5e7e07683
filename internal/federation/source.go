package federation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"ndamli-federation/provider/internal/vault"
)

// CredentialSource resolves the connection credentials for the active
// configuration. Key identifies the configuration so the registry can reuse
// or retire the pooled handle when the configuration changes.
type CredentialSource interface {
	// Key is stable for one configuration and safe to log; it must not
	// contain tokens or passwords.
	Key() string
	Credentials(ctx context.Context) (vault.Credentials, error)
	// Reset discards any cached secrets held by the source.
	Reset()
}

// StaticSource serves a fixed DSN, bypassing Vault (e.g. local dev).
type StaticSource struct {
	DSN string
}

func (s *StaticSource) Key() string {
	return "static:" + digest(s.DSN)
}

func (s *StaticSource) Credentials(context.Context) (vault.Credentials, error) {
	return vault.Credentials{URL: s.DSN}, nil
}

func (s *StaticSource) Reset() {}

// VaultSource resolves credentials through the Vault client's TTL cache.
type VaultSource struct {
	Client     *vault.Client
	SecretPath string
}

func (s *VaultSource) Key() string {
	return fmt.Sprintf("vault:%s/%s#%s", s.Client.BaseURL, s.SecretPath, s.Client.TokenDigest())
}

func (s *VaultSource) Credentials(ctx context.Context) (vault.Credentials, error) {
	return s.Client.GetDatabaseCredentials(ctx, s.SecretPath)
}

func (s *VaultSource) Reset() {
	s.Client.ClearCache()
}

// digest fingerprints a sensitive value so it can appear in keys and logs.
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:6])
}
