package devserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B4xAbhishek/aqua-ai-answers/identity"
)

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		err    error
	}{
		{"missing", "", "", ErrMissingToken},
		{"wrong scheme", "Basic abc", "", ErrMalformedHeader},
		{"no token", "Bearer ", "", ErrMalformedHeader},
		{"extra parts", "Bearer a b", "", ErrMalformedHeader},
		{"ok", "Bearer abc", "abc", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			got, err := ExtractBearer(r)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	ti, err := NewTokenIssuer("secret", "aqua-test", time.Hour)
	require.NoError(t, err)

	tok, err := ti.Issue("alice")
	require.NoError(t, err)
	sub, err := ti.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	// identity derives the same subject without the secret
	assert.Equal(t, "alice", identity.SubjectID(tok))

	again, err := ti.Issue("alice")
	require.NoError(t, err)
	assert.NotEqual(t, tok, again)
}

func TestTokenIssuerRejects(t *testing.T) {
	ti, err := NewTokenIssuer("secret", "aqua-test", time.Hour)
	require.NoError(t, err)
	tok, err := ti.Issue("alice")
	require.NoError(t, err)

	other, err := NewTokenIssuer("other-secret", "aqua-test", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewTokenIssuer("secret", "someone-else", time.Hour)
	require.NoError(t, err)
	_, err = wrongIssuer.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	ti.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = ti.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ti.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ti.Issue(" ")
	assert.Error(t, err)

	_, err = NewTokenIssuer("", "x", 0)
	assert.Error(t, err)
}
