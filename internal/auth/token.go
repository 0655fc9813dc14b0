package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/perfect-api/apiserver/types"
)

const (
	defaultTokenTTL = 24 * time.Hour
	tokenIssuer     = "perfect_api"
	tokenAudience   = "perfect_api_users"
)

var (
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrMissingSecret = errors.New("auth: jwt secret is not configured")
)

// TokenConfig is the immutable signing policy.
type TokenConfig struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
}

// DefaultTokenConfig returns the policy used by the API: one day tokens with
// fixed issuer and audience.
func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret:   secret,
		TTL:      defaultTokenTTL,
		Issuer:   tokenIssuer,
		Audience: tokenAudience,
	}
}

// Claims is the payload carried by access tokens.
type Claims struct {
	UserID string     `json:"id"`
	Role   types.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// Issue signs a token for userID carrying role.
func (i *TokenIssuer) Issue(userID string, role types.Role) (string, error) {
	if strings.TrimSpace(i.cfg.Secret) == "" {
		return "", ErrMissingSecret
	}
	now := i.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns its claims. Every failure, including
// a missing secret, is reported as ErrInvalidToken.
func (i *TokenIssuer) Verify(tokenString string) (Claims, error) {
	if strings.TrimSpace(i.cfg.Secret) == "" {
		return Claims{}, ErrInvalidToken
	}
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(i.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		claims.UserID = claims.Subject
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
