package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "blog", time.Hour)

	token, expiresAt, err := m.GenerateAccessToken(3, "alice", RoleEditor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := m.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.AdminID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleEditor, claims.Role)
	assert.Equal(t, "3", claims.Subject)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", "blog", time.Hour)
	token, _, err := m.GenerateAccessToken(3, "alice", RoleAdmin)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTManager("other", "blog", time.Hour).VerifyAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewJWTManager("secret", "elsewhere", time.Hour).VerifyAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewJWTManager("secret", "blog", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.VerifyAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("unknown role", func(t *testing.T) {
		bad, _, err := m.GenerateAccessToken(3, "alice", Role("root"))
		require.NoError(t, err)
		_, err = m.VerifyAccessToken(bad)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.VerifyAccessToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := ExtractTokenFromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer ", "Basic abc", "bearer abc"} {
		_, err := ExtractTokenFromHeader(header)
		assert.ErrorIs(t, err, ErrMissingBearer, header)
	}
}

func TestRoles(t *testing.T) {
	assert.True(t, RoleAdmin.Allows(RoleEditor))
	assert.True(t, RoleEditor.Allows(RoleEditor))
	assert.False(t, RoleViewer.Allows(RoleEditor))
	assert.False(t, Role("root").Allows(RoleViewer))
	assert.True(t, RoleViewer.Valid())
	assert.False(t, Role("").Valid())
	assert.Equal(t, []Role{RoleViewer, RoleEditor, RoleAdmin}, Roles())
}
