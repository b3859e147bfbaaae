package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-secret")
	t.Setenv("ENV", "dev")

	token, err := SignJWT(Claims{Sub: "admin-1", Name: "Ops", Role: "reviewer"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := VerifyJWT(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "admin-1" || claims.Role != "reviewer" || claims.Name != "Ops" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Exp-claims.Iat != int64(tokenTTL/time.Second) {
		t.Fatalf("unexpected ttl %d", claims.Exp-claims.Iat)
	}
}

func TestVerifyRejectsTamperedAndExpired(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-secret")
	t.Setenv("ENV", "dev")

	token, err := SignJWT(Claims{Sub: "admin-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parts := strings.Split(token, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"root"}`))
	if _, err := VerifyJWT(parts[0] + "." + forged + "." + parts[2]); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered payload, got %v", err)
	}

	expired, err := SignJWT(Claims{Sub: "admin-1", Iat: 1, Exp: 2})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyJWT(expired); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENV", "production")

	if _, err := SignJWT(Claims{Sub: "x"}); err == nil {
		t.Fatalf("expected error without secret in production")
	}
}

func TestVerifierIssuerAndLeeway(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := &Verifier{Secret: []byte("k"), Issuer: "ops-portal", Leeway: 30 * time.Second, Now: func() time.Time { return now }}

	token, err := v.Sign(Claims{Sub: "admin-1", Exp: now.Add(-10 * time.Second).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("token inside leeway rejected: %v", err)
	}
	if claims.Iss != "ops-portal" {
		t.Fatalf("expected issuer to be filled, got %q", claims.Iss)
	}

	other := &Verifier{Secret: []byte("k"), Issuer: "someone-else", Now: v.Now}
	if _, err := other.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}

	early, err := v.Sign(Claims{Sub: "admin-1", Nbf: now.Add(time.Minute).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(early); err != ErrInvalidToken {
		t.Fatalf("expected not-yet-valid token to fail, got %v", err)
	}
}
