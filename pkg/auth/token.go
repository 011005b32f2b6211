package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Claims is the access token body issued by the identity provider.
type Claims struct {
	UserID     uuid.UUID       `json:"user_id"`
	Role       enums.ActorRole `json:"role"`
	BusinessID *uuid.UUID      `json:"business_id,omitempty"`
	DriverID   *uuid.UUID      `json:"driver_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) check() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	if c.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	return nil
}

var errNoSecret = errors.New("jwt secret is required")

// Keys signs and verifies HS256 access tokens for a single issuer.
type Keys struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewKeys(cfg config.JWTConfig) *Keys {
	return &Keys{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Mint signs c for ttl starting at now. Production tokens come from the
// identity provider; this serves local tooling and tests.
func (k *Keys) Mint(c Claims, now time.Time, ttl time.Duration) (string, error) {
	switch {
	case len(k.secret) == 0:
		return "", errNoSecret
	case k.issuer == "":
		return "", errors.New("jwt issuer is required")
	case ttl <= 0:
		return "", errors.New("jwt ttl must be positive")
	}
	if err := c.check(); err != nil {
		return "", err
	}
	c.Issuer = k.issuer
	c.Subject = c.UserID.String()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry of raw and returns its claims.
func (k *Keys) Verify(raw string) (*Claims, error) {
	if len(k.secret) == 0 {
		return nil, errNoSecret
	}
	var c Claims
	if _, err := k.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return k.secret, nil
	}); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}
