package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const refreshNonceSize = 32

// ErrEmptySecret is returned when an HMAC secret is missing.
var ErrEmptySecret = errors.New("token: empty secret")

// IssueRefresh derives an opaque refresh token as HMAC-SHA256(secret, nonce || sessionHash).
// The value is stored on the session and only ever compared, never decoded.
func IssueRefresh(secret []byte, sessionHash string) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	var nonce [refreshNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(nonce[:])
	mac.Write([]byte(sessionHash))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// RefreshEqual compares a presented refresh token with the stored one in constant time.
// Empty values never match.
func RefreshEqual(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
