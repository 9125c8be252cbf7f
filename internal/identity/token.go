// Package identity turns bearer tokens into verified callers.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"proctorexam/internal/models"
)

// Issuer is stamped on every token this package signs
const Issuer = "proctorexam"

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid token")

type callerClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier checks HS256 tokens signed with a shared secret
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns the caller it identifies
func (v *Verifier) Verify(token string) (models.Caller, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	claims := &callerClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Caller{}, ErrInvalidToken
	}

	role := models.Role(claims.Role)
	switch role {
	case models.RoleStudent, models.RoleReviewer, models.RoleAdmin:
	default:
		return models.Caller{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return models.Caller{}, ErrInvalidToken
	}
	return models.Caller{StudentID: claims.Subject, Role: role}, nil
}

// Issue signs a token for caller valid for ttl
func (v *Verifier) Issue(caller models.Caller, ttl time.Duration) (string, error) {
	now := v.now()
	claims := callerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   caller.StudentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(caller.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
