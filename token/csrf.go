package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// NoExpiry disables the age check in VerifyCSRF.
const NoExpiry time.Duration = -1

// SignCSRF returns "hmac.timestamp" where hmac = HMAC-SHA256(secret, timestamp + accessToken)
// and timestamp is now in unix milliseconds.
func SignCSRF(secret []byte, accessToken string, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return csrfMAC(secret, ts, accessToken) + "." + ts, nil
}

// VerifyCSRF recomputes the HMAC for the timestamp embedded in tok. It requires the
// HMAC to match and, unless maxAge is NoExpiry, the token to be at most maxAge old.
func VerifyCSRF(secret []byte, accessToken string, maxAge time.Duration, tok string, now time.Time) bool {
	if len(secret) == 0 || accessToken == "" || tok == "" {
		return false
	}

	sum, ts, ok := strings.Cut(tok, ".")
	if !ok || sum == "" || ts == "" {
		return false
	}
	issuedMillis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	expected := csrfMAC(secret, ts, accessToken)
	if !hmac.Equal([]byte(sum), []byte(expected)) {
		return false
	}

	if maxAge == NoExpiry {
		return true
	}
	age := now.Sub(time.UnixMilli(issuedMillis))
	return age <= maxAge
}

func csrfMAC(secret []byte, ts, accessToken string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}
