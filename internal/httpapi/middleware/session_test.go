package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionToken_RoundTrip(t *testing.T) {
	token, err := SignSessionToken("session-1", "secret", time.Hour)
	require.NoError(t, err)

	sid, err := ParseSessionToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "session-1", sid)
}

func TestSessionToken_WrongSecret(t *testing.T) {
	token, err := SignSessionToken("session-1", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, "other-secret")
	assert.Error(t, err)
}

func TestSessionToken_Expired(t *testing.T) {
	token, err := SignSessionToken("session-1", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, "secret")
	assert.Error(t, err)
}
