// pkg/crypto/token.go

package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	cerr "github.com/cockroachdb/errors"
)

// AuthTokenBytes is the entropy of a generated server auth token.
const AuthTokenBytes = 32

// GenerateAuthToken returns a fresh random bearer token, hex encoded.
func GenerateAuthToken() (string, error) {
	buf := make([]byte, AuthTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", cerr.Wrap(err, "failed to read random bytes")
	}
	return hex.EncodeToString(buf), nil
}

// ConstantTimeCompare performs constant-time comparison of two credentials.
// Length inequality returns false immediately; content comparison never
// short-circuits.
func ConstantTimeCompare(expected, actual string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
