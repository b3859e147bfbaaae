package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Claims identifies the operator or service acting on the queue. Sub becomes
// the actor id on every audit event.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	Iss  string `json:"iss,omitempty"`
	Exp  int64  `json:"exp,omitempty"`
	Iat  int64  `json:"iat,omitempty"`
	Nbf  int64  `json:"nbf,omitempty"`
}

const (
	tokenTTL      = 12 * time.Hour
	defaultLeeway = 30 * time.Second
)

var (
	errMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// Verifier signs and checks HS256 tokens. An empty Issuer accepts any iss.
type Verifier struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

// VerifierFromEnv reads JWT_SECRET and JWT_ISSUER. Outside production a
// missing secret falls back to a fixed development value.
func VerifierFromEnv() (*Verifier, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	if secret == "" {
		if env == "production" || env == "prod" {
			return nil, fmt.Errorf("%w: JWT_SECRET required in production", errMissingSecret)
		}
		secret = "dev-secret"
	}
	return &Verifier{
		Secret: []byte(secret),
		Issuer: strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		Leeway: defaultLeeway,
	}, nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// Sign issues a token for claims, filling iat, exp and iss when unset.
func (v *Verifier) Sign(claims Claims) (string, error) {
	if claims.Sub == "" {
		return "", errors.New("sub is required")
	}
	now := v.now().Unix()
	if claims.Iat == 0 {
		claims.Iat = now
	}
	if claims.Exp == 0 {
		claims.Exp = claims.Iat + int64(tokenTTL/time.Second)
	}
	if claims.Iss == "" {
		claims.Iss = v.Issuer
	}

	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signingInput + "." + v.sign(signingInput), nil
}

// Verify checks the signature, issuer and validity window of token.
func (v *Verifier) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil || header.Alg != "HS256" {
		return Claims{}, ErrInvalidToken
	}

	expectedSig := v.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return Claims{}, ErrInvalidToken
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub == "" {
		return Claims{}, ErrInvalidToken
	}
	if v.Issuer != "" && claims.Iss != v.Issuer {
		return Claims{}, ErrInvalidToken
	}

	now := v.now()
	leeway := int64(v.Leeway / time.Second)
	if claims.Exp > 0 && now.Unix() > claims.Exp+leeway {
		return Claims{}, ErrInvalidToken
	}
	if claims.Nbf > 0 && now.Unix() < claims.Nbf-leeway {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) sign(input string) string {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignJWT signs claims with the environment-configured verifier.
func SignJWT(claims Claims) (string, error) {
	v, err := VerifierFromEnv()
	if err != nil {
		return "", err
	}
	return v.Sign(claims)
}

// VerifyJWT verifies token with the environment-configured verifier.
func VerifyJWT(token string) (Claims, error) {
	v, err := VerifierFromEnv()
	if err != nil {
		return Claims{}, err
	}
	return v.Verify(token)
}
