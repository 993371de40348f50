package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := LoadRegistry([]map[string]any{
		{"username": "alice", "role": RoleReadWrite, "rootPath": "/", "password": "secret"},
	}, t.TempDir())
	require.NoError(t, err)
	return registry
}

func newTestAuthority(t *testing.T, registry *Registry) *Authority {
	t.Helper()
	authority, err := NewAuthority("0123456789abcdef0123456789abcdef", DefaultSessionTTL, DefaultRotateWithin, registry)
	require.NoError(t, err)
	return authority
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	registry := testRegistry(t)
	authority := newTestAuthority(t, registry)

	token, err := authority.Issue(registry.Lookup("alice"))
	require.NoError(t, err)

	session, err := authority.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.User.Username)
	assert.NotEmpty(t, session.Nonce)
	assert.WithinDuration(t, time.Now().Add(DefaultSessionTTL), session.Expires, time.Minute)
}

func TestVerify_BitFlipRejected(t *testing.T) {
	registry := testRegistry(t)
	authority := newTestAuthority(t, registry)

	token, err := authority.Issue(registry.Lookup("alice"))
	require.NoError(t, err)

	// Flip one character at every position; no mutated token may verify.
	for i := 0; i < len(token); i++ {
		mutated := []byte(token)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		if string(mutated) == token {
			continue
		}
		_, err := authority.Verify(string(mutated))
		assert.ErrorIs(t, err, ErrUnauthorized, "position %d", i)
	}
}

func TestVerify_Malformed(t *testing.T) {
	registry := testRegistry(t)
	authority := newTestAuthority(t, registry)

	for _, token := range []string{"", ".", "abc", "abc.", ".def", "a.b.c", "!!!.???"} {
		_, err := authority.Verify(token)
		assert.ErrorIs(t, err, ErrUnauthorized, "token %q", token)
	}
}

func TestVerify_Expired(t *testing.T) {
	registry := testRegistry(t)
	authority := newTestAuthority(t, registry)

	token, err := authority.Issue(registry.Lookup("alice"))
	require.NoError(t, err)

	authority.now = func() time.Time { return time.Now().Add(DefaultSessionTTL + time.Second) }
	_, err = authority.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerify_DifferentSecret(t *testing.T) {
	registry := testRegistry(t)
	authority := newTestAuthority(t, registry)

	token, err := authority.Issue(registry.Lookup("alice"))
	require.NoError(t, err)

	other, err := NewAuthority("ffffffffffffffffffffffffffffffff", DefaultSessionTTL, DefaultRotateWithin, registry)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestShouldRotate(t *testing.T) {
	registry := testRegistry(t)
	authority := newTestAuthority(t, registry)

	issued := time.Now()
	token, err := authority.Issue(registry.Lookup("alice"))
	require.NoError(t, err)

	session, err := authority.Verify(token)
	require.NoError(t, err)
	assert.False(t, authority.ShouldRotate(session))

	// At T0+7h40m the remaining 20 minutes are under the 30 minute threshold,
	// and a token freshly issued then carries a full 8 hour lifetime.
	authority.now = func() time.Time { return issued.Add(7*time.Hour + 40*time.Minute) }
	session, err = authority.Verify(token)
	require.NoError(t, err)
	assert.True(t, authority.ShouldRotate(session))

	fresh, err := authority.Issue(session.User)
	require.NoError(t, err)

	authority.now = func() time.Time { return issued.Add(15 * time.Hour) }
	renewed, err := authority.Verify(fresh)
	require.NoError(t, err)
	assert.Equal(t, "alice", renewed.User.Username)
}

func TestVerifyPassword_Plaintext(t *testing.T) {
	u := &User{Username: "u", Secret: "hunter2"}
	assert.True(t, VerifyPassword(u, "hunter2"))
	assert.False(t, VerifyPassword(u, "hunter3"))
	assert.False(t, VerifyPassword(u, ""))
}

func TestVerifyPassword_Scrypt(t *testing.T) {
	salt := []byte("0123456789abcdef")
	secret, err := HashPassword("correct horse", salt)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(secret, "scrypt$"))

	u := &User{Username: "u", Secret: secret}
	assert.True(t, VerifyPassword(u, "correct horse"))
	assert.False(t, VerifyPassword(u, "battery staple"))
}

func TestVerifyPassword_BadScryptFormat(t *testing.T) {
	u := &User{Username: "u", Secret: "scrypt$not-base64!$zzz"}
	assert.False(t, VerifyPassword(u, "anything"))
}

func TestLoadRegistry_Validation(t *testing.T) {
	root := t.TempDir()

	_, err := LoadRegistry([]map[string]any{{"username": "", "password": "x"}}, root)
	assert.Error(t, err)

	_, err = LoadRegistry([]map[string]any{{"username": "a", "password": "x", "role": "superuser"}}, root)
	assert.Error(t, err)

	_, err = LoadRegistry([]map[string]any{
		{"username": "a", "password": "x"},
		{"username": "a", "password": "y"},
	}, root)
	assert.Error(t, err)

	_, err = LoadRegistry(nil, root)
	assert.Error(t, err)
}

func TestLoadRegistry_ScopedRoots(t *testing.T) {
	root := t.TempDir()

	registry, err := LoadRegistry([]map[string]any{
		{"username": "a", "password": "x", "rootPath": "/tenants/a"},
		{"username": "b", "password": "y", "rootPath": "/tenants/b"},
	}, root)
	require.NoError(t, err)

	a := registry.Lookup("a")
	require.NotNil(t, a)
	assert.True(t, strings.HasSuffix(a.RootReal, "/tenants/a"))
	assert.Nil(t, registry.Lookup("c"))
}

func TestSingleAdminRegistry(t *testing.T) {
	registry, err := SingleAdminRegistry("changeme", t.TempDir())
	require.NoError(t, err)

	admin := registry.Lookup("admin")
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.CanWrite())
	assert.True(t, VerifyPassword(admin, "changeme"))
}
