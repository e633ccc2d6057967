// Package auth provides credential primitives for the records API: bcrypt
// password hashing, signed JWT access tokens, symmetric encryption of stored
// third-party tokens, and the bearer-token middleware.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. Client registers (POST /api/v1/auth/register) with email, username, password
// 2. Client logs in (POST /api/v1/auth/login, form-encoded) and receives a JWT
// 3. Client sends "Authorization: Bearer <jwt>" on every protected call
// 4. RequireAuth validates the token, loads the user, and puts the user ID
//    in the request context
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<user id>","iat":...,"exp":...,"iss":"records-collector"}
//	- Signature: HMAC(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is written into and required on every token.
const Issuer = "records-collector"

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 30 * time.Minute

var (
	// ErrTokenExpired is returned by Validate for tokens past their exp claim.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrInvalidToken covers every other validation failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret and the one signing method it accepts. Tokens
// signed with any other algorithm (including "none") are rejected.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
}

// NewTokenService creates a TokenService.
//
// algorithm must be one of HS256, HS384, HS512. A ttl of zero falls back to
// DefaultTokenTTL.
func NewTokenService(secret, algorithm string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}

	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", algorithm)
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenService{secret: []byte(secret), method: method, ttl: ttl}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue signs an access token for subject with the configured lifetime.
func (s *TokenService) Issue(subject string) (string, error) {
	return s.IssueWithTTL(subject, s.ttl)
}

// IssueWithTTL signs a token with a custom lifetime. A negative ttl yields a
// token that is already expired, which tests rely on.
func (s *TokenService) IssueWithTTL(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject must not be empty")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns its subject.
//
// VALIDATION CHECKS:
//   - signature matches the secret
//   - alg header equals the configured algorithm
//   - exp is present and in the future
//   - iss equals Issuer
//   - sub is not empty
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}
