package server

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/save-a-playlist/internal/shared"
)

const (
	MaxSearchQueryLength  = 200
	MaxPlaylistNameLength = 100
	MaxTracksURLLength    = 2000
)

var suspicious = regexp.MustCompile(`(?i)<script|javascript:|data:|vbscript:|onload=|onerror=|onclick=`)

// Validator checks user input before it is forwarded to Spotify.
type Validator struct {
	tracksURL *regexp.Regexp
}

// NewValidator creates a Validator accepting tracks URLs under apiBaseURL.
func NewValidator(apiBaseURL string) *Validator {
	base := strings.TrimRight(apiBaseURL, "/")
	return &Validator{
		tracksURL: regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `/playlists/[a-zA-Z0-9]+/tracks(\?.*)?$`),
	}
}

// SearchQuery trims and validates a search query.
func (v *Validator) SearchQuery(q string) (string, error) {
	return checkText("search query", q, MaxSearchQueryLength)
}

// PlaylistName trims and validates a playlist name.
func (v *Validator) PlaylistName(name string) (string, error) {
	return checkText("playlist name", name, MaxPlaylistNameLength)
}

// TracksURL validates the API URL of a playlist's tracks.
func (v *Validator) TracksURL(u string) (string, error) {
	u = strings.TrimSpace(u)
	switch {
	case u == "":
		return "", fmt.Errorf("%w: tracks url cannot be empty", shared.ErrInvalidInput)
	case len(u) > MaxTracksURLLength:
		return "", fmt.Errorf("%w: tracks url cannot exceed %d characters", shared.ErrInvalidInput, MaxTracksURLLength)
	case !v.tracksURL.MatchString(u):
		return "", fmt.Errorf("%w: tracks url is not a Spotify playlist tracks url", shared.ErrInvalidInput)
	}
	return u, nil
}

func checkText(field, s string, maxLen int) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("%w: %s cannot be empty", shared.ErrInvalidInput, field)
	case utf8.RuneCountInString(s) > maxLen:
		return "", fmt.Errorf("%w: %s cannot exceed %d characters", shared.ErrInvalidInput, field, maxLen)
	case suspicious.MatchString(s):
		return "", fmt.Errorf("%w: %s contains potentially dangerous characters", shared.ErrInvalidInput, field)
	}
	return s, nil
}
