package repository

import (
	"context"
	"errors"

	"ndamli-federation/provider/internal/identity/domain"
)

// ErrUnavailable reports that the repository was given no usable database
// handle. Query failures against a reachable store are not surfaced here;
// they are logged and downgraded to "not found"/empty so a single bad query
// never crashes an authentication flow.
var ErrUnavailable = errors.New("identity repository: database handle unavailable")

// MaxSearchResults caps every search regardless of the caller's limit.
const MaxSearchResults = 50

// Repository answers point lookups and substring search over federated
// identities. Implementations never manage the handle's lifetime.
type Repository interface {
	// FindByID returns the identity for the external id, or nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Identity, error)
	// FindByLogin matches the login handle exactly (case-sensitive).
	FindByLogin(ctx context.Context, login string) (*domain.Identity, error)
	// FindByEmail matches the email case-insensitively.
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	// Search matches term as a case-insensitive substring of login or email,
	// ordered by ascending id. limit is capped at MaxSearchResults; a blank
	// term yields an empty slice.
	Search(ctx context.Context, term string, offset, limit int) ([]*domain.Identity, error)
}
