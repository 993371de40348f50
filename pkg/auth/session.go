package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults for session lifetime and rotation.
const (
	DefaultSessionTTL    = 8 * time.Hour
	DefaultRotateWithin  = 30 * time.Minute
	minSessionSecretSize = 16
)

// ErrUnauthorized covers every token failure: bad signature, malformed
// payload, expiry, unknown user. Callers get no finer distinction.
var ErrUnauthorized = errors.New("unauthorized")

// Session is a verified token's contents.
type Session struct {
	User    *User
	Nonce   string
	Expires time.Time
}

// tokenPayload is the canonical JSON form that gets signed. Exp is Unix
// milliseconds.
type tokenPayload struct {
	User  string `json:"user"`
	Nonce string `json:"nonce"`
	Exp   int64  `json:"exp"`
}

// Authority issues and verifies stateless session tokens.
//
// Tokens are base64url(payload) "." base64url(HMAC-SHA256(secret, payload)).
// Verification is constant time on the signature. There is no server-side
// session table; horizontal scaling only needs a shared secret.
type Authority struct {
	secret       []byte
	ttl          time.Duration
	rotateWithin time.Duration
	registry     *Registry

	// now is swapped in tests to control the clock.
	now func() time.Time
}

// NewAuthority builds a session authority over the given registry.
func NewAuthority(secret string, ttl, rotateWithin time.Duration, registry *Registry) (*Authority, error) {
	if len(secret) < minSessionSecretSize {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSessionSecretSize)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if rotateWithin <= 0 {
		rotateWithin = DefaultRotateWithin
	}
	return &Authority{
		secret:       []byte(secret),
		ttl:          ttl,
		rotateWithin: rotateWithin,
		registry:     registry,
		now:          time.Now,
	}, nil
}

// Issue mints a token for the user with a fresh nonce and full TTL.
func (a *Authority) Issue(u *User) (string, error) {
	payload := tokenPayload{
		User:  u.Username,
		Nonce: uuid.NewString(),
		Exp:   a.now().Add(a.ttl).UnixMilli(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(encoded)
	return body + "." + base64.RawURLEncoding.EncodeToString(a.sign(body)), nil
}

// Verify checks a token and returns its session.
//
// Any structural anomaly collapses into ErrUnauthorized: wrong part count,
// bad base64, signature mismatch, malformed payload, missing fields, expiry,
// or a user that is no longer registered.
func (a *Authority) Verify(token string) (*Session, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return nil, ErrUnauthorized
	}
	presented, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if !hmac.Equal(presented, a.sign(body)) {
		return nil, ErrUnauthorized
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrUnauthorized
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrUnauthorized
	}
	if payload.User == "" || payload.Nonce == "" || payload.Exp == 0 {
		return nil, ErrUnauthorized
	}

	expires := time.UnixMilli(payload.Exp)
	if !expires.After(a.now()) {
		return nil, ErrUnauthorized
	}

	user := a.registry.Lookup(payload.User)
	if user == nil {
		return nil, ErrUnauthorized
	}

	return &Session{User: user, Nonce: payload.Nonce, Expires: expires}, nil
}

// ShouldRotate reports whether the session's remaining lifetime has fallen
// to or below the rotation threshold. The old token stays valid until its natural
// expiry; rotation only attaches a fresh one.
func (a *Authority) ShouldRotate(s *Session) bool {
	return s.Expires.Sub(a.now()) <= a.rotateWithin
}

// TTL returns the configured session lifetime.
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

func (a *Authority) sign(body string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}
