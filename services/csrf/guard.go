// Package csrf implements double-submit cookie CSRF protection. Tokens are
// stateless: validity is recomputable from the token contents and the shared
// secret alone.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
)

// Reason codes logged for each distinct validation failure. The caller-visible
// response shape does not vary by reason.
const (
	ReasonMissing          = "missing"
	ReasonMismatch         = "token_mismatch"
	ReasonInvalidOrExpired = "invalid_or_expired"
)

// Guard generates and validates double-submit CSRF tokens.
type Guard struct {
	secret      []byte
	maxLifetime time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the guard's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a Guard from the CSRF configuration.
func NewGuard(cfg config.CSRFConfig, logger *zap.Logger, opts ...Option) *Guard {
	g := &Guard{
		secret:      []byte(cfg.SecretKey),
		maxLifetime: cfg.MaxLifetime,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces an opaque token binding the current timestamp, a random
// nonce, and optionally a user id. Wire format:
// base64url(timestamp:nonce[:user_id]) + "." + hex(HMAC-SHA256(payload)).
func (g *Guard) Generate(userID string) (string, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := fmt.Sprintf("%d:%s", g.now().Unix(), hex.EncodeToString(nonceBytes))
	if userID != "" {
		payload += ":" + userID
	}

	sig := g.sign(payload)
	token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
	return token, nil
}

// Validate recomputes the HMAC over the embedded payload, compares it in
// constant time, and checks lifetime and the optional user binding.
func (g *Guard) Validate(token, expectedUserID string) bool {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	payload := string(payloadBytes)

	expected := g.sign(payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[1])) != 1 {
		return false
	}

	fields := strings.SplitN(payload, ":", 3)
	if len(fields) < 2 {
		return false
	}

	issuedUnix, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return false
	}
	if g.now().Sub(time.Unix(issuedUnix, 0)) > g.maxLifetime {
		return false
	}

	if expectedUserID != "" {
		if len(fields) < 3 || fields[2] != expectedUserID {
			return false
		}
	}

	return true
}

func (g *Guard) sign(payload string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
