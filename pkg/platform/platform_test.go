package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	c, ok := ParseCode(" Facebook ")
	require.True(t, ok)
	require.Equal(t, Facebook, c)

	_, ok = ParseCode("myspace")
	require.False(t, ok)

	require.True(t, Instagram.MetaFamily())
	require.False(t, Twitter.MetaFamily())
}

func TestTokenExpiresAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.Nil(t, Token{}.ExpiresAt(now))

	at := Token{ExpiresIn: 3600}.ExpiresAt(now)
	require.NotNil(t, at)
	require.Equal(t, now.Add(time.Hour), *at)
}
