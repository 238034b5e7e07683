// Package domain defines the federated identity model mapped from the
// external user store. Identities are read-only snapshots: constructed fresh
// on every repository query and never cached across requests.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Identity is one federated user row from the external store, with its
// authority names attached.
type Identity struct {
	// ID is the external numeric identifier; immutable once loaded.
	ID    int64
	Login string
	// PasswordHash is the stored bcrypt hash. Never logged in full.
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Email        string

	Activated          bool
	Locked             bool
	HasPasswordUpdated bool

	LangKey     string
	ImageURL    string
	TypeCompte  string
	Institution string
	Agence      string

	ActivationKey  string
	ResetKey       string
	ResetDate      *time.Time // nil when the column is NULL
	ExpirationDate *time.Time
	OTP            string
	Cachet         string

	// Authorities is the de-duplicated set of role names.
	Authorities []string

	// Extra carries attribute keys the fixed fields do not anticipate.
	Extra map[string]string
}

// FullName joins first and last name, skipping empty parts.
func (i *Identity) FullName() string {
	parts := make([]string, 0, 2)
	if i.FirstName != "" {
		parts = append(parts, i.FirstName)
	}
	if i.LastName != "" {
		parts = append(parts, i.LastName)
	}
	return strings.Join(parts, " ")
}

// Expired reports whether the account's expiration timestamp has passed.
// An identity without an expiration never expires.
func (i *Identity) Expired(now time.Time) bool {
	return i.ExpirationDate != nil && i.ExpirationDate.Before(now)
}

// HasAuthority reports whether the identity carries the given role name.
func (i *Identity) HasAuthority(name string) bool {
	for _, a := range i.Authorities {
		if a == name {
			return true
		}
	}
	return false
}

// Attributes returns the profile attribute bag exposed to the identity
// server: only non-empty fields are present, plus hasPasswordUpdated which is
// always set, and any Extra keys.
func (i *Identity) Attributes() map[string]string {
	attrs := make(map[string]string)
	if i.Phone != "" {
		attrs["phone"] = i.Phone
	}
	if i.TypeCompte != "" {
		attrs["typeCompte"] = i.TypeCompte
	}
	if i.Institution != "" {
		attrs["institution"] = i.Institution
	}
	if i.Agence != "" {
		attrs["agence"] = i.Agence
	}
	if i.LangKey != "" {
		attrs["langKey"] = i.LangKey
	}
	if i.ImageURL != "" {
		attrs["imageUrl"] = i.ImageURL
	}
	attrs["hasPasswordUpdated"] = strconv.FormatBool(i.HasPasswordUpdated)
	if i.ExpirationDate != nil {
		attrs["expirationDate"] = i.ExpirationDate.UTC().Format(time.RFC3339)
	}
	for k, v := range i.Extra {
		attrs[k] = v
	}
	return attrs
}
