package session

import (
	"crypto/subtle"
	"fmt"
	"time"
)

const (
	DefaultTTL      = time.Hour
	DefaultStateTTL = 10 * time.Minute
)

// Tokens are the provider credentials carried by a session.
//
// RefreshToken is empty for sessions derived from the client-credentials flow.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Session is the payload of the signed auth cookie. It is never stored server-side.
type Session struct {
	Tokens     Tokens `json:"tokens"`
	UserID     string `json:"user_id,omitempty"`
	IsLoggedIn bool   `json:"isLoggedIn"`
	Timestamp  int64  `json:"timestamp"`
}

// HasAccessToken reports whether the session carries a usable access token.
func (s *Session) HasAccessToken() bool {
	return s != nil && s.Tokens.AccessToken != ""
}

// OAuthState binds the CSRF state parameter of one login attempt to the browser that started it.
type OAuthState struct {
	State string `json:"state"`
}

// Manager mints and reads session and OAuth-state tokens with fixed lifetimes.
type Manager struct {
	codec    *Codec
	ttl      time.Duration
	stateTTL time.Duration
	now      func() time.Time
}

// ManagerOpts contains configuration options for creating a Manager.
type ManagerOpts struct {
	Codec    *Codec
	TTL      time.Duration
	StateTTL time.Duration
	Now      func() time.Time
}

// NewManager creates a new Manager, filling zero durations with [DefaultTTL] and [DefaultStateTTL].
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("session manager requires a codec")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	if opts.Now == nil {
		opts.Now = opts.Codec.now
	}

	return &Manager{
		codec:    opts.Codec,
		ttl:      opts.TTL,
		stateTTL: opts.StateTTL,
		now:      opts.Now,
	}, nil
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// StateTTL returns the OAuth-state lifetime.
func (m *Manager) StateTTL() time.Duration { return m.stateTTL }

// Mint issues a brand-new logged-in session token for tokens and userID.
func (m *Manager) Mint(tokens Tokens, userID string) (string, *Session, error) {
	if tokens.AccessToken == "" {
		return "", nil, fmt.Errorf("cannot mint a logged-in session without an access token")
	}

	s := &Session{
		Tokens:     tokens,
		UserID:     userID,
		IsLoggedIn: true,
		Timestamp:  m.now().UnixMilli(),
	}

	token, err := m.codec.Encode(s, m.ttl, PurposeSession)
	if err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Parse verifies a session token. Any failure is reported as [ErrInvalidToken].
func (m *Manager) Parse(token string) (*Session, error) {
	var s Session
	if err := m.codec.Decode(token, PurposeSession, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoggedIn reports whether token decodes to a session with an access token.
func (m *Manager) LoggedIn(token string) bool {
	s, err := m.Parse(token)
	return err == nil && s.HasAccessToken()
}

// IssueState wraps state in a short-lived OAuth-state token.
func (m *Manager) IssueState(state string) (string, error) {
	if state == "" {
		return "", fmt.Errorf("oauth state is required")
	}
	return m.codec.Encode(OAuthState{State: state}, m.stateTTL, PurposeOAuthState)
}

// VerifyState reports whether stateToken is a valid OAuth-state token whose state equals want.
func (m *Manager) VerifyState(stateToken, want string) bool {
	if stateToken == "" || want == "" {
		return false
	}

	var st OAuthState
	if err := m.codec.Decode(stateToken, PurposeOAuthState, &st); err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(st.State), []byte(want)) == 1
}
