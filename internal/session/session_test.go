package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOpts{Codec: testCodec(t, clock)})
	require.NoError(t, err)
	return m
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(ManagerOpts{})
	assert.Error(t, err, "codec is required")

	m := testManager(t, newFakeClock())
	assert.Equal(t, DefaultTTL, m.TTL())
	assert.Equal(t, DefaultStateTTL, m.StateTTL())
}

func TestManager_MintAndParse(t *testing.T) {
	clock := newFakeClock()
	m := testManager(t, clock)

	tokens := Tokens{AccessToken: "access", RefreshToken: "refresh"}
	token, minted, err := m.Mint(tokens, "")
	require.NoError(t, err)
	assert.True(t, minted.IsLoggedIn)
	assert.Equal(t, clock.Now().UnixMilli(), minted.Timestamp)

	got, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, minted, got)
	assert.True(t, got.IsLoggedIn)
	assert.Empty(t, got.UserID)
	assert.True(t, m.LoggedIn(token))

	clock.Advance(time.Hour + time.Second)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, m.LoggedIn(token))
}

func TestManager_MintRequiresAccessToken(t *testing.T) {
	m := testManager(t, newFakeClock())
	_, _, err := m.Mint(Tokens{RefreshToken: "r"}, "u")
	assert.Error(t, err)
}

func TestManager_State(t *testing.T) {
	clock := newFakeClock()
	m := testManager(t, clock)

	stateToken, err := m.IssueState("AbCdEf0123456789AbCdEf0123456789")
	require.NoError(t, err)

	assert.True(t, m.VerifyState(stateToken, "AbCdEf0123456789AbCdEf0123456789"))
	assert.False(t, m.VerifyState(stateToken, "AbCdEf0123456789AbCdEf012345678X"))
	assert.False(t, m.VerifyState(stateToken, ""))
	assert.False(t, m.VerifyState("", "AbCdEf0123456789AbCdEf0123456789"))

	// A state token is never accepted as a session.
	_, err = m.Parse(stateToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	clock.Advance(DefaultStateTTL + time.Second)
	assert.False(t, m.VerifyState(stateToken, "AbCdEf0123456789AbCdEf0123456789"))
}

func TestManager_SessionIsNotAState(t *testing.T) {
	m := testManager(t, newFakeClock())
	token, _, err := m.Mint(Tokens{AccessToken: "a"}, "u")
	require.NoError(t, err)
	assert.False(t, m.VerifyState(token, "anything"))
}
