package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "patient-queue"

var ErrInvalidToken = errors.New("invalid token")

type viewerClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 viewer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(viewer Viewer) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := viewerClaims{
		Name:  viewer.DisplayName,
		Email: viewer.ContactAddress,
		Role:  string(viewer.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   viewer.ContactAddress,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) Parse(raw string) (Viewer, error) {
	claims := &viewerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Viewer{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Viewer{}, ErrInvalidToken
	}

	viewer := Viewer{DisplayName: claims.Name, ContactAddress: claims.Email, Role: Role(claims.Role)}
	if viewer.ContactAddress == "" || !viewer.Role.Valid() {
		return Viewer{}, fmt.Errorf("%w: missing viewer claims", ErrInvalidToken)
	}
	return viewer, nil
}
