package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/services"
	"github.com/desertthunder/save-a-playlist/internal/session"
	"github.com/desertthunder/save-a-playlist/internal/shared"
)

// Resolver rejections. They are distinct so the HTTP layer can map each to a status and message.
var (
	ErrNotConnected   = errors.New("spotify account not connected")
	ErrInvalidSession = errors.New("invalid or expired session")
	ErrIdentityLookup = fmt.Errorf("could not get user id: %w", shared.ErrIdentityLookup)
	ErrNoAccessToken  = errors.New("no valid spotify token")
)

// Resolution is an authenticated caller.
type Resolution struct {
	Session *session.Session
	// Reissued is a replacement session token, set when the user id was resolved during this call.
	Reissued string
}

// UserID returns the resolved user id.
func (r *Resolution) UserID() string { return r.Session.UserID }

// AccessToken returns the caller's provider access token.
func (r *Resolution) AccessToken() string { return r.Session.Tokens.AccessToken }

// Resolver turns a session cookie value into an authenticated caller, backfilling the user id once.
type Resolver struct {
	sessions *session.Manager
	identity services.IdentityLookup
	logger   *log.Logger
}

// NewResolver creates a session resolver.
func NewResolver(sessions *session.Manager, identity services.IdentityLookup, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Resolver{
		sessions: sessions,
		identity: identity,
		logger:   shared.WithLogger(logger, "component", "resolver"),
	}
}

// Resolve validates token. A session without a user id costs exactly one identity lookup and
// yields a new session token in [Resolution.Reissued]; the old token is left untouched.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Resolution, error) {
	if token == "" {
		return nil, ErrNotConnected
	}

	s, err := r.sessions.Parse(token)
	if err != nil {
		return nil, ErrInvalidSession
	}

	if !s.HasAccessToken() {
		return nil, ErrNoAccessToken
	}

	if s.UserID != "" {
		return &Resolution{Session: s}, nil
	}

	userID, err := r.identity.UserID(ctx, s.Tokens.AccessToken)
	if err != nil {
		r.logger.Warn("identity lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIdentityLookup, err)
	}
	if userID == "" {
		return nil, ErrIdentityLookup
	}

	reissued, updated, err := r.sessions.Mint(s.Tokens, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reissue session: %w", err)
	}

	return &Resolution{Session: updated, Reissued: reissued}, nil
}

type contextKey int

const ctxResolution contextKey = iota

// NewContext returns a copy of ctx carrying res.
func NewContext(ctx context.Context, res *Resolution) context.Context {
	return context.WithValue(ctx, ctxResolution, res)
}

// FromContext returns the caller stored by [NewContext], if any.
func FromContext(ctx context.Context) (*Resolution, bool) {
	res, ok := ctx.Value(ctxResolution).(*Resolution)
	return res, ok && res != nil && res.Session != nil
}
