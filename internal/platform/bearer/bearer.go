// Package bearer issues and verifies the HS256 bearer tokens that storefront
// clients present on every /api request.
package bearer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wholesale-storefront/storefront/internal/platform/config"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
)

const (
	// EnvPrefix namespaces the token settings shared by every process.
	EnvPrefix = "STOREFRONT_TOKEN"

	minSecretBytes = 16
)

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Secret string        `env:"SECRET"`
	Issuer string        `env:"ISSUER" envDefault:"storefront"`
	TTL    time.Duration `env:"TTL" envDefault:"12h"`
}

// Config defines how tokens are signed and verified.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// claims is the internal claims type used for JWT parsing.
type claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role,omitempty"`
	TaxExempt bool   `json:"tax_exempt,omitempty"`
}

// LoadConfigFromEnv reads token configuration from STOREFRONT_TOKEN_*.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw tokenEnv
	if err := config.ParseEnvWithPrefix(&raw, EnvPrefix); err != nil {
		return Config{}, err
	}
	cfg := Config{
		Secret: []byte(strings.TrimSpace(raw.Secret)),
		Issuer: strings.TrimSpace(raw.Issuer),
		TTL:    raw.TTL,
		Now:    now,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Secret) < minSecretBytes {
		return fmt.Errorf("%s_SECRET must be at least %d bytes", EnvPrefix, minSecretBytes)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s_ISSUER is required", EnvPrefix)
	}
	if c.TTL <= 0 {
		c.TTL = 12 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Issue signs a token for principal.
func Issue(cfg Config, principal requestctx.Principal) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	subject := strings.TrimSpace(principal.UserID)
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	now := cfg.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
		Role:      strings.TrimSpace(principal.Role),
		TaxExempt: principal.TaxExempt,
	})
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the principal it names.
func Verify(cfg Config, token string) (requestctx.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}
	if err := cfg.validate(); err != nil {
		return requestctx.Principal{}, err
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	)
	if err != nil {
		return requestctx.Principal{}, mapJWTError(err)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token subject is required")
	}
	return requestctx.Principal{
		UserID:    parsed.Subject,
		Role:      parsed.Role,
		TaxExempt: parsed.TaxExempt,
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "bearer token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "bearer token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "bearer token issuer mismatch", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "bearer token is invalid", err)
	}
}

// SubjectUnverified reads the subject of token without checking its
// signature. The sync agent does not hold the signing secret; it only labels
// queued operations with the user they were captured for.
func SubjectUnverified(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	var parsed claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Subject)
}
