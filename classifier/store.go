package classifier

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active model and swaps it when the artifact changes.
type Store struct {
	path string

	mu    sync.RWMutex
	model *Model
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the artifact and makes it active. On error the previous model
// stays active.
func (s *Store) Load() error {
	m, err := Load(s.path)
	if err != nil {
		return err
	}
	s.Set(m)
	return nil
}

func (s *Store) Set(m *Model) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

// Model returns the active model or ErrModelNotLoaded.
func (s *Store) Model() (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, ErrModelNotLoaded
	}
	return s.model, nil
}

// Watch reloads the artifact whenever it is written or replaced. The parent
// directory is watched so the artifact may appear after startup. Watch runs
// until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	slog.Info("classifier: watching model artifact", "path", s.path)

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// Save writes a temp file and renames it over the target, which
			// shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.Load(); err != nil {
				slog.Error("classifier: reload failed, keeping previous model", "path", s.path, "err", err)
				continue
			}
			slog.Info("classifier: model reloaded", "path", s.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("classifier: watcher error", "err", err)
		}
	}
}
