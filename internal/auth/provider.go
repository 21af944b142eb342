// Package auth supplies the identity provider collaborator: bearer
// credentials in, stable tenant identifiers out.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider exchanges bearer credentials for tenant identifiers. It is an
// injected dependency so handlers can run against a test double.
type Provider interface {
	// Issue mints a bearer credential for the tenant.
	Issue(tenant string) (string, error)
	// Authenticate validates a bearer credential and returns the tenant
	// identifier it was issued for.
	Authenticate(credential string) (string, error)
}

// JWTProvider implements Provider with HS256-signed tokens.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
	}
}

func (p *JWTProvider) Issue(tenant string) (string, error) {
	claims := jwt.MapClaims{
		"sub": tenant,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(p.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

func (p *JWTProvider) Authenticate(credential string) (string, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	return "", fmt.Errorf("invalid token")
}
