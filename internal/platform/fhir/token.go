package fhir

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialExpiry extracts the expiry claim from a bearer credential
// without verifying its signature. Verification belongs to the vendor; the
// engine only wants to warn before attempting a kickoff with a credential
// the vendor will reject. Returns nil when the token carries no exp claim
// or is not a JWT (some vendors issue opaque tokens).
func CredentialExpiry(bearerToken string) (*time.Time, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(bearerToken, claims)
	if err != nil {
		// Opaque (non-JWT) tokens are legitimate; expiry is simply unknown.
		return nil, nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return nil, nil
	}
	t := exp.Time
	return &t, nil
}

// CredentialExpired reports whether the bearer credential is a JWT whose
// expiry has passed.
func CredentialExpired(bearerToken string, now time.Time) bool {
	exp, err := CredentialExpiry(bearerToken)
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
