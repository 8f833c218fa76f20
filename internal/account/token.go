package account

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/qorzen/kernel/internal/kerrors"
)

// tokenSigner issues and verifies opaque, HMAC-SHA256-signed tokens. No part
// of the pack carries a JWT-shaped library, so a signed opaque payload is
// the minimal correct stateless primitive here rather than a bespoke JWT.
type tokenSigner struct {
	key []byte
}

func newTokenSigner(key []byte) *tokenSigner {
	return &tokenSigner{key: key}
}

type tokenPayload struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *tokenSigner) sign(claims Claims) (string, error) {
	payload := tokenPayload{UserID: claims.UserID, IssuedAt: claims.IssuedAt, ExpiresAt: claims.ExpiresAt}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", kerrors.Internal("account.token", "encode failed").WithCause(err)
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(body) + "." + enc.EncodeToString(sig), nil
}

func (s *tokenSigner) verify(token string) (Claims, error) {
	enc := base64.RawURLEncoding
	dot := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return Claims{}, kerrors.Auth("account.token", "invalid").WithMeta("code", "auth.invalid")
	}

	body, err := enc.DecodeString(token[:dot])
	if err != nil {
		return Claims{}, kerrors.Auth("account.token", "invalid").WithMeta("code", "auth.invalid")
	}
	sig, err := enc.DecodeString(token[dot+1:])
	if err != nil {
		return Claims{}, kerrors.Auth("account.token", "invalid").WithMeta("code", "auth.invalid")
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return Claims{}, kerrors.Auth("account.token", "invalid").WithMeta("code", "auth.invalid")
	}

	var payload tokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Claims{}, kerrors.Auth("account.token", "invalid").WithMeta("code", "auth.invalid")
	}
	if time.Now().After(payload.ExpiresAt) {
		return Claims{}, kerrors.Auth("account.token", "expired").WithMeta("code", "auth.expired")
	}

	return Claims{UserID: payload.UserID, IssuedAt: payload.IssuedAt, ExpiresAt: payload.ExpiresAt}, nil
}

func randomOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", kerrors.Internal("account.token", "random source failed").WithCause(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
