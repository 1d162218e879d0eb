package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/B4xAbhishek/aqua-ai-answers/session"
)

// FileSource reads a bearer token from a file and watches it. Writing a
// token signs in; removing or emptying the file signs out. Tokens may be
// rotated in place; only a change of subject is reported as an identity
// change.
type FileSource struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	token   string
	current *fileSubject
	subs    subscribers

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

var _ session.IdentitySource = (*FileSource)(nil)

// fileSubject reads the latest token from its source on every call.
type fileSubject struct {
	id  string
	src *FileSource
}

func (f *fileSubject) ID() string { return f.id }

func (f *fileSubject) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.src.mu.Lock()
	defer f.src.mu.Unlock()
	if f.src.current != f || f.src.token == "" {
		return "", ErrNoToken
	}
	return f.src.token, nil
}

// NewFileSource loads path once. A missing file means no identity.
func NewFileSource(path string, logger zerolog.Logger) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("identity: token file path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	fsrc := &FileSource{path: abs, logger: logger}
	if _, err := fsrc.reload(); err != nil {
		return nil, err
	}
	return fsrc, nil
}

// NewDefaultFileSource uses the global logger.
func NewDefaultFileSource(path string) (*FileSource, error) {
	return NewFileSource(path, log.Logger)
}

// Path returns the watched file.
func (f *FileSource) Path() string { return f.path }

// Current implements session.IdentitySource.
func (f *FileSource) Current() session.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	return f.current
}

// Subscribe implements session.IdentitySource. Events are delivered on the
// watcher goroutine.
func (f *FileSource) Subscribe(fn func(session.Identity)) func() { return f.subs.add(fn) }

// Start watches the token file's directory. Non-blocking.
func (f *FileSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("identity: watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		_ = w.Close()
		return fmt.Errorf("identity: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("identity: watch %s: %w", dir, err)
	}
	f.watcher = w
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.running = true
	go f.run(ctx, w, f.stopCh, f.doneCh)
	f.logger.Debug().Str("path", f.path).Msg("identity: watching token file")
	return nil
}

// Close stops watching and waits for the watcher goroutine.
func (f *FileSource) Close() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	stopCh, doneCh, w := f.stopCh, f.doneCh, f.watcher
	f.mu.Unlock()

	close(stopCh)
	<-doneCh
	return w.Close()
}

func (f *FileSource) run(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			changed, err := f.reload()
			if err != nil {
				f.logger.Warn().Err(err).Str("path", f.path).Msg("identity: reading token file")
				continue
			}
			if changed {
				f.publish()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Error().Err(err).Msg("identity: watcher error")
		}
	}
}

// reload reads the file and reports whether the subject changed.
func (f *FileSource) reload() (bool, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("identity: read %s: %w", f.path, err)
	}
	token := strings.TrimSpace(string(raw))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token

	prev := ""
	if f.current != nil {
		prev = f.current.id
	}
	next := ""
	if token != "" {
		next = SubjectID(token)
	}
	if prev == next {
		return false, nil
	}
	if next == "" {
		f.current = nil
	} else {
		f.current = &fileSubject{id: next, src: f}
	}
	return true, nil
}

func (f *FileSource) publish() {
	id := f.Current()
	if id == nil {
		f.logger.Info().Msg("identity: signed out")
	} else {
		f.logger.Info().Str("identity", id.ID()).Msg("identity: signed in")
	}
	for _, fn := range f.subs.snapshot() {
		fn(id)
	}
}

// Save replaces the token file atomically with owner-only permissions,
// creating parent directories as needed. Watchers never observe a
// half-written file.
func Save(path, token string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(strings.TrimSpace(token) + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
