package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired reports whether an access token is known to be dead
// without a server round-trip. Tokens are opaque to the SDK, but when the
// server issues JWTs the expiry claim is visible to an unverified parse;
// acting on it saves a guaranteed 401. Opaque tokens and JWTs without an
// expiry never expire locally.
func TokenExpired(token string) bool {
	if token == "" {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
