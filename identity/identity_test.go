package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/B4xAbhishek/aqua-ai-answers/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func signed(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "iat": time.Now().Unix(), "nonce": time.Now().UnixNano()})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSubjectID(t *testing.T) {
	assert.Equal(t, "user-42", SubjectID(signed(t, "user-42")))

	opaque := SubjectID("not-a-jwt")
	assert.Contains(t, opaque, "token-")
	assert.Equal(t, opaque, SubjectID("not-a-jwt"), "fingerprint is stable")
	assert.NotEqual(t, opaque, SubjectID("another"))

	_, err := JWTSubject(signed(t, ""))
	require.Error(t, err)
}

func TestNewSubject(t *testing.T) {
	_, err := NewSubject("  ")
	require.ErrorIs(t, err, ErrNoToken)

	tok := signed(t, "u1")
	s, err := NewSubject(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", s.ID())
	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Token(ctx)
	require.Error(t, err)
}

func TestStatic(t *testing.T) {
	src := NewStatic(nil)
	assert.Nil(t, src.Current())

	var seen []string
	unsub := src.Subscribe(func(id session.Identity) {
		if id == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, id.ID())
	})

	u1, _ := NewSubject(signed(t, "u1"))
	src.Set(u1)
	src.Set(nil)
	unsub()
	src.Set(u1)

	assert.Equal(t, []string{"u1", ""}, seen)
	assert.Equal(t, "u1", src.Current().ID())
}

type events struct {
	mu  sync.Mutex
	ids []string
}

func (e *events) add(id session.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == nil {
		e.ids = append(e.ids, "")
		return
	}
	e.ids = append(e.ids, id.ID())
}

func (e *events) last() (string, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.ids) == 0 {
		return "<none>", 0
	}
	return e.ids[len(e.ids)-1], len(e.ids)
}

func TestFileSource_SignInRotateSignOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	src, err := NewFileSource(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, src.Current())

	ev := &events{}
	src.Subscribe(ev.add)
	require.NoError(t, src.Start(context.Background()))
	t.Cleanup(func() { _ = src.Close() })

	tok1 := signed(t, "u1")
	require.NoError(t, Save(path, tok1))
	require.Eventually(t, func() bool { id, _ := ev.last(); return id == "u1" }, 3*time.Second, 10*time.Millisecond)

	cur := src.Current()
	require.NotNil(t, cur)
	got, err := cur.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok1, got)

	// Rotating the token for the same subject is not an identity change.
	time.Sleep(5 * time.Millisecond)
	tok1b := signed(t, "u1")
	require.NoError(t, Save(path, tok1b+" "))
	require.Eventually(t, func() bool {
		got, err := cur.Token(context.Background())
		return err == nil && got == tok1b
	}, 3*time.Second, 10*time.Millisecond)
	_, n := ev.last()
	assert.Equal(t, 1, n)

	require.NoError(t, Remove(path))
	require.Eventually(t, func() bool { id, _ := ev.last(); return id == "" }, 3*time.Second, 10*time.Millisecond)
	assert.Nil(t, src.Current())
	_, err = cur.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken, "a signed-out subject has no credential")
}

func TestFileSource_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	require.NoError(t, Save(path, signed(t, "u9")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	src, err := NewFileSource(path, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, src.Current())
	assert.Equal(t, "u9", src.Current().ID())
	require.NoError(t, src.Close(), "closing an unstarted source is a no-op")
}

func TestFileSource_EmptyPath(t *testing.T) {
	_, err := NewFileSource("", zerolog.Nop())
	require.Error(t, err)
	require.NoError(t, Remove(filepath.Join(t.TempDir(), "missing")))
}
