package utils

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind is the "type" claim of a token.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Default TTL policies used by IssuePair.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrEmptySecret      = errors.New("token secret is empty")
	ErrEmptySubject     = errors.New("token subject is empty")
	ErrUnknownTokenKind = errors.New("unknown token kind")
)

// TokenPayload is the signed body of a token. Field order is part of the wire
// format: encoding/json emits sub, type, exp in declaration order.
type TokenPayload struct {
	Sub  string    `json:"sub"`
	Type TokenKind `json:"type"`
	Exp  int64     `json:"exp"`
}

// TokenPair is what register, login and refresh hand back to the client.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues and validates "<part>.<signature>" tokens where part is
// the base64url (no padding) JSON payload and signature its HMAC-SHA256 under
// the shared secret. Only the HS256 signer of golang-jwt is used; tokens are
// not JWTs. It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now as the source of "now" for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService builds a service around the deployment's signing secret.
// Non-positive TTLs fall back to DefaultAccessTTL / DefaultRefreshTTL.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the lifetime given to access tokens by IssuePair.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the lifetime given to refresh tokens by IssuePair.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue signs a token for subject of the given kind expiring ttlSeconds from
// now. A negative ttl produces an already expired token.
func (s *TokenService) Issue(subject string, kind TokenKind, ttlSeconds int64) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if !kind.valid() {
		return "", ErrUnknownTokenKind
	}
	body, err := json.Marshal(TokenPayload{
		Sub:  subject,
		Type: kind,
		Exp:  s.now().Unix() + ttlSeconds,
	})
	if err != nil {
		return "", err
	}
	part := encodeSegment(body)
	sig, err := s.sign(part)
	if err != nil {
		return "", err
	}
	return part + "." + sig, nil
}

// IssuePair issues an access and a refresh token for subject.
func (s *TokenService) IssuePair(subject string) (TokenPair, error) {
	access, err := s.Issue(subject, TokenAccess, int64(s.accessTTL/time.Second))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.Issue(subject, TokenRefresh, int64(s.refreshTTL/time.Second))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Token: access, RefreshToken: refresh}, nil
}

// Parse validates token and returns its payload. The boolean is false for any
// malformed, forged, expired or unknown-kind token; Parse never panics and
// does not say why a token was rejected.
func (s *TokenService) Parse(token string) (TokenPayload, bool) {
	if strings.Count(token, ".") != 1 {
		return TokenPayload{}, false
	}
	part, sig, _ := strings.Cut(token, ".")
	if part == "" || sig == "" {
		return TokenPayload{}, false
	}

	expected, err := s.sign(part)
	if err != nil {
		return TokenPayload{}, false
	}
	// length is not secret; the byte comparison must stay constant time
	if len(sig) != len(expected) {
		return TokenPayload{}, false
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return TokenPayload{}, false
	}

	body, err := decodeSegment(part)
	if err != nil {
		return TokenPayload{}, false
	}
	p, ok := decodePayload(body)
	if !ok || p.Exp <= s.now().Unix() {
		return TokenPayload{}, false
	}
	return p, true
}

// ParseKind is Parse restricted to tokens of the given kind, so a refresh
// token is never accepted where an access token is required and vice versa.
func (s *TokenService) ParseKind(token string, kind TokenKind) (TokenPayload, bool) {
	p, ok := s.Parse(token)
	if !ok || p.Type != kind {
		return TokenPayload{}, false
	}
	return p, true
}

func (s *TokenService) sign(part string) (string, error) {
	sum, err := jwt.SigningMethodHS256.Sign(part, s.secret)
	if err != nil {
		return "", err
	}
	return encodeSegment(sum), nil
}

// decodePayload reads the exact keys sub, type and exp. Keys differing only
// in case are ignored rather than folded as encoding/json does for structs.
func decodePayload(body []byte) (TokenPayload, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return TokenPayload{}, false
	}
	rawSub, okSub := fields["sub"]
	rawType, okType := fields["type"]
	rawExp, okExp := fields["exp"]
	if !okSub || !okType || !okExp {
		return TokenPayload{}, false
	}
	var p TokenPayload
	if json.Unmarshal(rawSub, &p.Sub) != nil || json.Unmarshal(rawType, &p.Type) != nil || json.Unmarshal(rawExp, &p.Exp) != nil {
		return TokenPayload{}, false
	}
	if p.Sub == "" || p.Exp == 0 || !p.Type.valid() {
		return TokenPayload{}, false
	}
	return p, true
}

func (k TokenKind) valid() bool {
	return k == TokenAccess || k == TokenRefresh
}

// encodeSegment is base64url without '=' padding.
func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
