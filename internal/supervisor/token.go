package supervisor

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints and verifies the short-lived HMAC-signed callback
// tokens a RegisterRemote service presents on each Call, so the RPC
// endpoint can attribute the call to the service id the token was
// issued for rather than trust the caller's self-reported id.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

// NewTokenIssuer builds an issuer from config.AuthConfig's fields. A
// non-positive expiry defaults to five minutes.
func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), expiry: expiry}
}

// Issue mints a callback token scoped to serviceID.
func (t *TokenIssuer) Issue(serviceID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   serviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks tokenString's signature and expiry and returns the
// service id it was issued for.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid callback token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid callback token")
	}
	return claims.Subject, nil
}
