package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/models"
)

var (
	// ErrTokenExpired is returned when the token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned when the token fails signature or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenTypeMismatch is returned when the typ claim does not match the
	// expected token type.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Claims is the JWT claim set for access, refresh, and service tokens.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string           `json:"tenant_id,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
	Permissions []string         `json:"permissions,omitempty"`
	TokenType   models.TokenType `json:"typ"`
	ServiceName string           `json:"service_name,omitempty"`
}

// Codec signs and verifies gateway tokens. The signing algorithm (symmetric
// HMAC or RSA) is fixed at construction from the deployment profile.
type Codec struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	issuer    string
	audience  string
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the codec's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a Codec from the auth configuration.
func NewCodec(cfg config.AuthConfig, opts ...Option) (*Codec, error) {
	c := &Codec{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}

	switch cfg.Algorithm {
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires a secret key")
		}
		c.method = jwt.SigningMethodHS256
		key := []byte(cfg.SecretKey)
		c.signKey = key
		c.verifyKey = key
	case "RS256":
		priv, pub, err := loadRSAKeyPair(cfg.PrivateKeyFile, cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		c.method = jwt.SigningMethodRS256
		c.signKey = priv
		c.verifyKey = pub
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.Algorithm)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateAccessToken creates a signed access token for the principal.
func (c *Codec) CreateAccessToken(p *models.Principal, ttl time.Duration) (string, error) {
	return c.sign(&Claims{
		RegisteredClaims: c.registered(p.UserID, ttl),
		TenantID:         p.TenantID,
		Roles:            p.Roles,
		Permissions:      p.Permissions,
		TokenType:        models.TokenTypeAccess,
	})
}

// CreateRefreshToken creates a signed refresh token for the principal.
// Refresh tokens carry identity and roles but no permission snapshot;
// permissions are re-derived when the refresh is exchanged.
func (c *Codec) CreateRefreshToken(p *models.Principal, ttl time.Duration) (string, error) {
	return c.sign(&Claims{
		RegisteredClaims: c.registered(p.UserID, ttl),
		TenantID:         p.TenantID,
		Roles:            p.Roles,
		TokenType:        models.TokenTypeRefresh,
	})
}

// CreateServiceToken creates a signed service-to-service token.
func (c *Codec) CreateServiceToken(serviceName string, permissions []string, ttl time.Duration) (string, error) {
	return c.sign(&Claims{
		RegisteredClaims: c.registered("service:"+serviceName, ttl),
		TenantID:         "system",
		Roles:            []string{"service"},
		Permissions:      permissions,
		TokenType:        models.TokenTypeService,
		ServiceName:      serviceName,
	})
}

// Validate verifies the token signature and claims and requires the typ claim
// to match expectedType. The signature is verified before any claim is
// trusted; expiry is reported as ErrTokenExpired only when the signature is
// otherwise valid.
func (c *Codec) Validate(tokenString string, expectedType models.TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.verifyKey, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrTokenTypeMismatch, expectedType, claims.TokenType)
	}

	return claims, nil
}

// Principal converts validated claims into a request principal.
func (cl *Claims) Principal() *models.Principal {
	p := &models.Principal{
		UserID:      cl.Subject,
		TenantID:    cl.TenantID,
		Roles:       cl.Roles,
		Permissions: cl.Permissions,
		TokenType:   cl.TokenType,
	}
	if cl.IssuedAt != nil {
		p.IssuedAt = cl.IssuedAt.Time
	}
	if cl.ExpiresAt != nil {
		p.ExpiresAt = cl.ExpiresAt.Time
	}
	return p
}

func (c *Codec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (c *Codec) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(c.method, claims)
	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func loadRSAKeyPair(privateFile, publicFile string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privPEM, err := os.ReadFile(privateFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pubPEM, err := os.ReadFile(publicFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return priv, pub, nil
}
