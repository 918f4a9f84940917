// Package contacts persists the target contact list as a small JSON file
// and keeps an in-memory view of it, optionally refreshed by a filesystem
// watcher when the file is edited out-of-band.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrExists is returned when adding a nickname already present
// (case-insensitively).
var ErrExists = errors.New("contact already exists")

// ErrNotFound is returned when removing a nickname that is not present.
var ErrNotFound = errors.New("contact not found")

// ErrEmptyNickname rejects blank nicknames.
var ErrEmptyNickname = errors.New("nickname cannot be empty")

type fileFormat struct {
	Contacts []string `json:"contacts"`
}

// Store is the contact list backed by a JSON file. Nicknames are unique
// case-insensitively; the stored casing is whatever the caller supplied.
type Store struct {
	path string
	log  *zap.Logger

	mu    sync.RWMutex
	cache []string
}

// NewStore opens the store at path. A missing file is an empty list.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	s := &Store{path: path, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file into the cache.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.cache = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read contacts %s: %w", s.path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse contacts %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.cache = ff.Contacts
	s.mu.Unlock()
	return nil
}

// List returns a copy of the current contact list.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cache...)
}

// Add appends a nickname, enforcing case-insensitive uniqueness.
func (s *Store) Add(nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return ErrEmptyNickname
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.cache {
		if strings.EqualFold(existing, nickname) {
			return fmt.Errorf("%w: %s", ErrExists, nickname)
		}
	}
	s.cache = append(s.cache, nickname)
	return s.saveLocked()
}

// Remove deletes a nickname, case-insensitively.
func (s *Store) Remove(nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.cache[:0]
	removed := false
	for _, existing := range s.cache {
		if strings.EqualFold(existing, nickname) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, nickname)
	}
	s.cache = kept
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Contacts: s.cache}, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write contacts %s: %w", s.path, err)
	}
	return nil
}

// Watch refreshes the cache when the backing file changes on disk, until ctx
// is cancelled. Errors from the watcher are logged and the loop continues.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("contacts watcher: %w", err)
	}
	// Watch the file itself when it exists, otherwise nothing to do until
	// the first write recreates it; watching is best-effort.
	if err := watcher.Add(s.path); err != nil {
		s.log.Debug("contacts file not watchable yet", zap.Error(err))
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.log.Warn("contacts reload failed", zap.Error(err))
					continue
				}
				s.log.Info("contacts reloaded", zap.Int("count", len(s.List())))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("contacts watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
