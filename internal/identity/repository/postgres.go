package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"ndamli-federation/provider/internal/identity/domain"
)

// The external store's schema is owned by the source system; queries are
// read-only and name every column explicitly.
const userColumns = `id, login, password_hash, first_name, last_name, phone, email,
	activated, locked, has_password_updated, lang_key, image_url, type_compte,
	institution, agence, activation_key, reset_key, reset_date, expiration_date,
	otp, cachet`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a repository reading through the given pooled
// handle. The repository borrows the handle; it never closes it.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByID returns the identity for the external id, or nil if not found.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*domain.Identity, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM jhi_user WHERE id = $1`, id)
}

// FindByLogin matches the login handle exactly (case-sensitive).
func (r *PostgresRepository) FindByLogin(ctx context.Context, login string) (*domain.Identity, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM jhi_user WHERE login = $1`, login)
}

// FindByEmail matches the email case-insensitively.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM jhi_user WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Identity, error) {
	if r.db == nil {
		return nil, ErrUnavailable
	}
	row := r.db.QueryRowContext(ctx, query, arg)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		// Downgraded to not-found so one bad query cannot take down an
		// authentication flow. See the search variant for the same policy.
		log.Printf("identity repository: lookup failed: %v", err)
		return nil, nil
	}
	if err := r.loadAuthorities(ctx, identity); err != nil {
		log.Printf("identity repository: loading authorities for id=%d: %v", identity.ID, err)
		return nil, nil
	}
	return identity, nil
}

// Search matches term as a case-insensitive substring of login or email.
// Results are ordered by ascending id for determinism; limit is capped at
// MaxSearchResults. A blank term yields an empty slice rather than an
// unbounded scan. Storage failures are logged and yield an empty slice.
func (r *PostgresRepository) Search(ctx context.Context, term string, offset, limit int) ([]*domain.Identity, error) {
	if r.db == nil {
		return nil, ErrUnavailable
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return []*domain.Identity{}, nil
	}
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + strings.ToLower(term) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM jhi_user
		 WHERE LOWER(login) LIKE $1 OR LOWER(email) LIKE $1
		 ORDER BY id ASC LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		log.Printf("identity repository: search failed: %v", err)
		return []*domain.Identity{}, nil
	}
	defer rows.Close()

	out := make([]*domain.Identity, 0, limit)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			log.Printf("identity repository: scanning search row: %v", err)
			return []*domain.Identity{}, nil
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		log.Printf("identity repository: iterating search rows: %v", err)
		return []*domain.Identity{}, nil
	}

	for _, identity := range out {
		if err := r.loadAuthorities(ctx, identity); err != nil {
			log.Printf("identity repository: loading authorities for id=%d: %v", identity.ID, err)
			return []*domain.Identity{}, nil
		}
	}
	return out, nil
}

// loadAuthorities attaches the de-duplicated role name set. No rows means an
// empty set, never nil.
func (r *PostgresRepository) loadAuthorities(ctx context.Context, identity *domain.Identity) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT authority_name FROM jhi_user_authority WHERE user_id = $1 ORDER BY authority_name`,
		identity.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	authorities := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if !seen[name] {
			seen[name] = true
			authorities = append(authorities, name)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	identity.Authorities = authorities
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanIdentity reads every column explicitly, converting NULL timestamps to
// nil and NULL strings to empty.
func scanIdentity(row rowScanner) (*domain.Identity, error) {
	var (
		identity                             domain.Identity
		firstName, lastName, phone, email    sql.NullString
		langKey, imageURL, typeCompte        sql.NullString
		institution, agence                  sql.NullString
		activationKey, resetKey, otp, cachet sql.NullString
		resetDate, expirationDate            sql.NullTime
	)
	err := row.Scan(
		&identity.ID,
		&identity.Login,
		&identity.PasswordHash,
		&firstName,
		&lastName,
		&phone,
		&email,
		&identity.Activated,
		&identity.Locked,
		&identity.HasPasswordUpdated,
		&langKey,
		&imageURL,
		&typeCompte,
		&institution,
		&agence,
		&activationKey,
		&resetKey,
		&resetDate,
		&expirationDate,
		&otp,
		&cachet,
	)
	if err != nil {
		return nil, err
	}

	identity.FirstName = firstName.String
	identity.LastName = lastName.String
	identity.Phone = phone.String
	identity.Email = email.String
	identity.LangKey = langKey.String
	identity.ImageURL = imageURL.String
	identity.TypeCompte = typeCompte.String
	identity.Institution = institution.String
	identity.Agence = agence.String
	identity.ActivationKey = activationKey.String
	identity.ResetKey = resetKey.String
	identity.OTP = otp.String
	identity.Cachet = cachet.String
	if resetDate.Valid {
		t := resetDate.Time
		identity.ResetDate = &t
	}
	if expirationDate.Valid {
		t := expirationDate.Time
		identity.ExpirationDate = &t
	}
	return &identity, nil
}
