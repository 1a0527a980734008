package sdk

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidToken is returned when a token is not a well-formed compact
// signed-claims string (three non-empty dot-separated segments whose first
// two parts decode to JSON objects).
var ErrInvalidToken = errors.New("invalid token")

// DecodedCredential is the introspected form of a token. It is derived on
// demand from CachedCredential.Token and never persisted.
type DecodedCredential struct {
	Header        map[string]any
	Payload       map[string]any
	SignaturePart string
}

// Claims holds the payload fields the gate cares about.
type Claims struct {
	Subject   string     `mapstructure:"sub"`
	Username  string     `mapstructure:"username"`
	IssuedAt  *time.Time `mapstructure:"-"`
	ExpiresAt *time.Time `mapstructure:"-"`
}

// tokenParser decodes segments without verifying signatures. Padding is
// restored before base64url decoding so both padded and raw segments parse.
var tokenParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeToken splits and decodes a token for inspection only. No signature
// verification is performed: trust in the token comes from the TLS channel to
// the issuing server, not from this function.
func DecodeToken(token string) (*DecodedCredential, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidToken, len(parts))
	}
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", ErrInvalidToken, i)
		}
	}

	// Accept the standard alphabet as well as base64url.
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(token)

	claims := jwt.MapClaims{}
	parsed, _, err := tokenParser.ParseUnverified(normalized, claims)
	// An unknown or missing alg only matters for verification, which is not our job.
	if err != nil && !(parsed != nil && errors.Is(err, jwt.ErrTokenUnverifiable)) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &DecodedCredential{
		Header:        parsed.Header,
		Payload:       claims,
		SignaturePart: parts[2],
	}, nil
}

// Claims extracts the known claims from the decoded payload. Claims of the
// wrong type are reported as an error rather than silently zeroed.
func (d *DecodedCredential) Claims() (*Claims, error) {
	var out Claims
	if err := mapstructure.Decode(d.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	mc := jwt.MapClaims(d.Payload)
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("decode exp claim: %w", err)
	}
	if exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	iat, err := mc.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("decode iat claim: %w", err)
	}
	if iat != nil {
		t := iat.Time
		out.IssuedAt = &t
	}
	return &out, nil
}

// expiryEntry is the memoized exp claim of one token string.
type expiryEntry struct {
	exp time.Time
	ok  bool
}

// expiryCache memoizes decoding keyed by the raw token. The exp claim is a
// pure function of the token bytes, so entries never go stale.
var expiryCache = expirable.NewLRU[string, expiryEntry](32, nil, time.Hour)

// TokenExpiry returns the expiry claim of a token, or nil when the token does
// not decode or carries no usable exp claim.
func TokenExpiry(token string) *time.Time {
	entry, hit := expiryCache.Get(token)
	if !hit {
		entry = decodeExpiry(token)
		expiryCache.Add(token, entry)
	}
	if !entry.ok {
		return nil
	}
	t := entry.exp
	return &t
}

func decodeExpiry(token string) expiryEntry {
	decoded, err := DecodeToken(token)
	if err != nil {
		return expiryEntry{}
	}
	exp, err := jwt.MapClaims(decoded.Payload).GetExpirationTime()
	if err != nil || exp == nil {
		return expiryEntry{}
	}
	return expiryEntry{exp: exp.Time, ok: true}
}

// IsTokenExpired reports whether a token should be treated as expired at now.
// Undecodable tokens and tokens without an exp claim are always expired.
// Comparison is at seconds granularity.
func IsTokenExpired(token string, now time.Time) bool {
	exp := TokenExpiry(token)
	if exp == nil {
		return true
	}
	return exp.Unix() <= now.Unix()
}
