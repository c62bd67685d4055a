package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles a token can carry
const (
	RoleClinician = "clinician"
	RoleService   = "service"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClinicianID string `json:"clinician_id,omitempty"`
	Role        string `json:"role"` // "clinician" or "service"
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with a shared secret
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer; ttl defaults to 12 hours
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateClinicianToken generates a JWT token for a clinician
func (i *Issuer) GenerateClinicianToken(clinicianID string) (string, time.Time, error) {
	if clinicianID == "" {
		return "", time.Time{}, errors.New("clinician ID cannot be empty")
	}
	return i.sign(&JWTClaims{ClinicianID: clinicianID, Role: RoleClinician})
}

// GenerateServiceToken generates a JWT token for a backend service
func (i *Issuer) GenerateServiceToken(name string) (string, time.Time, error) {
	claims := &JWTClaims{Role: RoleService}
	claims.Subject = name
	return i.sign(claims)
}

func (i *Issuer) sign(claims *JWTClaims) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.IssuedAt = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.Role != RoleClinician && claims.Role != RoleService {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}
