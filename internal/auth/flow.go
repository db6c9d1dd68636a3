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

// ErrStateMismatch means the callback state was missing, expired, forged, or belongs to another login.
var ErrStateMismatch = errors.New("oauth state mismatch")

// Stage is a step of one login attempt.
type Stage int

const (
	StageStart Stage = iota
	StageRedirectToProvider
	StageAwaitingCallback
	StageStateVerified
	StageStateMismatch
	StageTokenExchanged
	StageExchangeFailed
	StageSessionIssued
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "START"
	case StageRedirectToProvider:
		return "REDIRECT_TO_PROVIDER"
	case StageAwaitingCallback:
		return "AWAITING_CALLBACK"
	case StageStateVerified:
		return "STATE_VERIFIED"
	case StageStateMismatch:
		return "STATE_MISMATCH"
	case StageTokenExchanged:
		return "TOKEN_EXCHANGED"
	case StageExchangeFailed:
		return "EXCHANGE_FAILED"
	case StageSessionIssued:
		return "SESSION_ISSUED"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether a login attempt ends at s. Terminal stages are never retried.
func (s Stage) Terminal() bool {
	return s == StageStateMismatch || s == StageExchangeFailed || s == StageSessionIssued
}

// StartResult is the outcome of [Flow.Start].
type StartResult struct {
	Stage Stage
	// AlreadyAuthenticated is set when the caller holds a valid session; nothing else is populated.
	AlreadyAuthenticated bool
	RedirectURL          string
	// StateToken is the signed state to store in the state cookie.
	StateToken string
}

// CallbackRequest carries the provider redirect and the browser's state cookie.
type CallbackRequest struct {
	Host          string
	State         string // state query parameter
	StateToken    string // state cookie value
	Code          string
	ProviderError string // error query parameter, e.g. access_denied
}

// CallbackResult is the outcome of [Flow.Callback]. It is returned alongside errors so the
// stage reached can be logged.
type CallbackResult struct {
	Stage        Stage
	SessionToken string
	Session      *session.Session
}

// Flow runs the authorization-code login: redirect to the provider, then handle its callback.
//
// Flow holds no per-login state; the state value travels in a signed cookie.
type Flow struct {
	authorizer services.Authorizer
	sessions   *session.Manager
	logger     *log.Logger
}

// NewFlow creates a login flow.
func NewFlow(authorizer services.Authorizer, sessions *session.Manager, logger *log.Logger) *Flow {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Flow{
		authorizer: authorizer,
		sessions:   sessions,
		logger:     shared.WithLogger(logger, "component", "oauth"),
	}
}

// Start begins a login for a browser reaching the service via host.
//
// A browser already holding a valid session with an access token is not sent to the provider.
func (f *Flow) Start(sessionToken, host string) (*StartResult, error) {
	if sessionToken != "" && f.sessions.LoggedIn(sessionToken) {
		return &StartResult{Stage: StageStart, AlreadyAuthenticated: true}, nil
	}

	req, err := f.authorizer.AuthURLWithState(host)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization URL: %w", err)
	}

	stateToken, err := f.sessions.IssueState(req.State)
	if err != nil {
		return nil, fmt.Errorf("failed to sign oauth state: %w", err)
	}

	f.logger.Debug("redirecting to provider", "host", host)

	return &StartResult{
		Stage:       StageRedirectToProvider,
		RedirectURL: req.URL,
		StateToken:  stateToken,
	}, nil
}

// Callback completes a login. The code is exchanged only after the state cookie verifies and its
// state equals the query state; a mismatch returns [ErrStateMismatch]. Exchange failures wrap
// [shared.ErrExchangeFailed].
func (f *Flow) Callback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	if !f.sessions.VerifyState(req.StateToken, req.State) {
		f.logger.Warn("oauth state mismatch", "has_cookie", req.StateToken != "", "has_state", req.State != "")
		return &CallbackResult{Stage: StageStateMismatch}, ErrStateMismatch
	}

	if req.ProviderError != "" {
		f.logger.Warn("provider denied authorization", "error", req.ProviderError)
		return &CallbackResult{Stage: StageExchangeFailed},
			fmt.Errorf("%w: provider returned %q", shared.ErrExchangeFailed, req.ProviderError)
	}
	if req.Code == "" {
		return &CallbackResult{Stage: StageExchangeFailed},
			fmt.Errorf("%w: missing authorization code", shared.ErrExchangeFailed)
	}

	tokens, err := f.authorizer.ExchangeCode(ctx, req.Code, req.Host)
	if err != nil {
		f.logger.Error("code exchange failed", "error", err)
		if !errors.Is(err, shared.ErrExchangeFailed) {
			err = fmt.Errorf("%w: %w", shared.ErrExchangeFailed, err)
		}
		return &CallbackResult{Stage: StageExchangeFailed}, err
	}

	token, s, err := f.sessions.Mint(session.Tokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, tokens.UserID)
	if err != nil {
		return &CallbackResult{Stage: StageTokenExchanged}, fmt.Errorf("failed to issue session: %w", err)
	}

	f.logger.Info("session issued", "has_user_id", s.UserID != "")

	return &CallbackResult{Stage: StageSessionIssued, SessionToken: token, Session: s}, nil
}
