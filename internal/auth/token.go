package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
)

// ErrInvalidToken is returned for malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// Module provides the token issuer to Fx.
var Module = fx.Provide(NewIssuer)

// Principal is the authenticated caller carried through a request.
type Principal struct {
	UserID int64
	Role   entity.Role
}

// Claims is the JWT payload issued on login.
type Claims struct {
	Role entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens and hashes passwords.
type Issuer struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewIssuer builds an Issuer from auth configuration.
func NewIssuer(cfg config.Config) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.Auth.JWTSecret),
		issuer:     cfg.Auth.Issuer,
		ttl:        cfg.Auth.TokenTTL,
		bcryptCost: cfg.Auth.BcryptCost,
		now:        time.Now,
	}
}

// Issue returns a signed token for the principal and its expiry.
func (i *Issuer) Issue(p Principal) (string, time.Time, error) {
	now := i.now().UTC()
	expires := now.Add(i.ttl)
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token and returns the principal it was issued for.
func (i *Issuer) Verify(token string) (Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || !claims.Role.Valid() {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: id, Role: claims.Role}, nil
}

// HashPassword derives a bcrypt hash.
func (i *Issuer) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func (i *Issuer) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
