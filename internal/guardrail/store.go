package guardrail

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current Policy behind an atomic reference and hot-reloads
// it from disk when the backing file changes, mirroring the debounced
// fsnotify watch loop used for skill discovery.
type Store struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	current atomic.Pointer[Policy]

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStore loads the policy at path and returns a Store ready to serve it.
// Watch must be called separately to enable hot-reload.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default().With("component", "guardrail")
	}
	policy, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, debounce: 250 * time.Millisecond, logger: logger}
	s.current.Store(policy)
	return s, nil
}

// NewStoreWithPolicy builds a Store pre-seeded with policy and no backing
// file, for callers (tests, in-process defaults) that construct a Policy
// programmatically rather than loading it from disk. Watch is a no-op on
// such a store.
func NewStoreWithPolicy(policy *Policy) *Store {
	s := &Store{debounce: 250 * time.Millisecond, logger: slog.Default().With("component", "guardrail")}
	s.current.Store(policy)
	return s
}

// Policy returns the currently active policy.
func (s *Store) Policy() *Policy {
	return s.current.Load()
}

// Watch starts an fsnotify watch on the policy file's directory and reloads
// the policy, debounced, on every write/create/rename event. It is a no-op
// if the store has no backing path.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	s.watchMu.Lock()
	if s.watcher != nil {
		s.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.watchMu.Unlock()
		return err
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		s.watchMu.Unlock()
		return err
	}
	s.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.watchMu.Unlock()

	s.wg.Add(1)
	go s.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops the watch loop, if running, and blocks until it exits.
func (s *Store) Close() error {
	s.watchMu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	watcher := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.debounce, s.reload)
	}

	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("guardrail policy watch error", "error", err)
		}
	}
}

func (s *Store) reload() {
	policy, err := Load(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		s.logger.Warn("guardrail policy reload failed, keeping previous policy", "error", err)
		return
	}
	s.current.Store(policy)
	s.logger.Info("guardrail policy reloaded", "path", s.path)
}
