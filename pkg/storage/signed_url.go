package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Errors returned when validating download tokens.
var (
	ErrTokenMalformed = errors.New("invalid token format")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// SignedToken is the metadata carried by a download token.
type SignedToken struct {
	Subject   string
	Locator   string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed artifact download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token binding the subject (application id) to an artifact locator.
func (s *SignedURLSigner) Generate(subject, locator string) (string, time.Time, error) {
	if subject == "" || locator == "" {
		return "", time.Time{}, fmt.Errorf("subject and locator required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	encodedLocator := base64.RawURLEncoding.EncodeToString([]byte(locator))
	signature := s.sign(encodedSubject, ts, encodedLocator)
	token := strings.Join([]string{encodedSubject, ts, encodedLocator, signature}, ".")
	return token, time.Unix(expiresAt.Unix(), 0).UTC(), nil
}

// Parse validates a token and returns the embedded metadata.
func (s *SignedURLSigner) Parse(token string) (SignedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return SignedToken{}, ErrTokenMalformed
	}
	encodedSubject, ts, encodedLocator, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(encodedSubject, ts, encodedLocator)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return SignedToken{}, ErrTokenSignature
	}

	subject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return SignedToken{}, fmt.Errorf("%w: subject", ErrTokenMalformed)
	}
	locator, err := base64.RawURLEncoding.DecodeString(encodedLocator)
	if err != nil {
		return SignedToken{}, fmt.Errorf("%w: locator", ErrTokenMalformed)
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return SignedToken{}, fmt.Errorf("%w: timestamp", ErrTokenMalformed)
	}
	expiresAt := time.Unix(expUnix, 0).UTC()
	if s.now().After(expiresAt) {
		return SignedToken{}, ErrTokenExpired
	}
	return SignedToken{Subject: string(subject), Locator: string(locator), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
