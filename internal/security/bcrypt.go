// Package security validates stored bcrypt password hashes. Callers must not
// log or persist plaintext passwords.
package security

import (
	"errors"
	"regexp"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// bcryptPattern is the final structural check: version tag, two-digit cost,
// and a 53-character salt+digest body over the bcrypt alphabet.
var bcryptPattern = regexp.MustCompile(`^\$2[abxy]\$\d{2}\$[./A-Za-z0-9]{53}$`)

// IsBcryptHash reports whether hash is a well-formed bcrypt hash: exactly 60
// characters, '$' at positions 0, 3 and 6, version 2a/2b/2x/2y, cost between
// 04 and 31, and a valid body. Never panics on malformed or hostile input.
func IsBcryptHash(hash string) bool {
	if len(hash) != 60 {
		return false
	}
	if hash[0] != '$' || hash[3] != '$' || hash[6] != '$' {
		return false
	}
	switch hash[1:3] {
	case "2a", "2b", "2x", "2y":
	default:
		return false
	}
	cost, err := strconv.Atoi(hash[4:6])
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return false
	}
	return bcryptPattern.MatchString(hash)
}

// Matches compares a plaintext password against a stored bcrypt hash.
// Returns false, never an error, when either input is empty or the stored
// value is not a recognized bcrypt hash; otherwise returns the result of the
// salted comparison. The plaintext is never logged.
func Matches(plaintext, hash string) bool {
	if plaintext == "" || hash == "" {
		return false
	}
	if !IsBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Cost extracts the cost factor from a stored hash. Returns -1 if hash is not
// a recognized bcrypt hash.
func Cost(hash string) int {
	if !IsBcryptHash(hash) {
		return -1
	}
	cost, err := strconv.Atoi(hash[4:6])
	if err != nil {
		return -1
	}
	return cost
}

// Encode hashes plaintext at the given cost. cost must be between 4 and 31.
// Intended for seeding and tests; production hashes come from the source store.
func Encode(plaintext string, cost int) (string, error) {
	if plaintext == "" {
		return "", errors.New("security: plaintext must not be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", errors.New("security: bcrypt cost must be between 4 and 31")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeDefault hashes plaintext at bcrypt's default cost.
func EncodeDefault(plaintext string) (string, error) {
	return Encode(plaintext, bcrypt.DefaultCost)
}
