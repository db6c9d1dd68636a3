package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose tags a signed token with what it may be used for.
type Purpose string

const (
	PurposeSession    Purpose = "session"
	PurposeOAuthState Purpose = "oauth_state"
)

// DefaultIssuer is the iss claim stamped on every token when no issuer is configured.
const DefaultIssuer = "save-a-playlist"

// ErrInvalidToken is the only error [Codec.Decode] returns for a token it will not accept.
var ErrInvalidToken = errors.New("invalid or expired token")

// MinSecretLength is the shortest HMAC key the codec accepts.
const MinSecretLength = 32

// envelope is the JWT claim set. The payload rides under "data" so any
// JSON-serializable value can be signed without colliding with registered claims.
type envelope struct {
	jwt.RegisteredClaims
	Purpose Purpose         `json:"purpose"`
	Data    json.RawMessage `json:"data"`
}

// Codec signs and verifies compact, URL-safe, time-limited tokens (HS256 JWTs).
//
// A Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures a [Codec].
type CodecOption func(*Codec)

// WithClock replaces the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIssuer sets the issuer claim written and required by the codec.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

// NewCodec creates a codec keyed by secret.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs payload with an expiry of now+ttl under the given purpose.
func (c *Codec) Encode(payload any, ttl time.Duration, purpose Purpose) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %v", ttl)
	}
	if purpose == "" {
		return "", fmt.Errorf("token purpose is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	now := c.now()
	claims := envelope{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
		Data:    data,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and unmarshals its payload into out.
//
// Bad signatures, malformed input, expiry, issuer or purpose mismatches all
// yield [ErrInvalidToken] so callers cannot learn why a token was rejected.
func (c *Codec) Decode(token string, purpose Purpose, out any) error {
	if token == "" {
		return ErrInvalidToken
	}

	var claims envelope
	_, err := jwt.ParseWithClaims(token, &claims, c.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return ErrInvalidToken
	}

	if claims.Purpose != purpose || len(claims.Data) == 0 {
		return ErrInvalidToken
	}

	if out != nil {
		if err := json.Unmarshal(claims.Data, out); err != nil {
			return ErrInvalidToken
		}
	}
	return nil
}

// ExpiresAt reports when token expires without checking the purpose. Intended for diagnostics only.
func (c *Codec) ExpiresAt(token string) (time.Time, error) {
	var claims envelope
	if _, err := jwt.ParseWithClaims(token, &claims, c.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	); err != nil {
		return time.Time{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

func (c *Codec) key(*jwt.Token) (any, error) {
	return c.secret, nil
}
