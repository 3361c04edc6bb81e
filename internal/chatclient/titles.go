package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// TitleStore remembers which conversation titles have already played their
// reveal animation. It is read once at startup and written back on every
// change.
type TitleStore struct {
	path string

	mu    sync.Mutex
	typed map[string]struct{}
}

// LoadTitleStore reads path. A missing file yields an empty store.
func LoadTitleStore(path string) (*TitleStore, error) {
	s := &TitleStore{path: path, typed: map[string]struct{}{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read typed titles: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode typed titles: %w", err)
	}
	for _, id := range ids {
		s.typed[id] = struct{}{}
	}
	return s, nil
}

func (s *TitleStore) Typed(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typed[conversationID]
	return ok
}

// MarkTyped records conversationID and persists the store before returning.
func (s *TitleStore) MarkTyped(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.typed[conversationID]; ok {
		return nil
	}
	s.typed[conversationID] = struct{}{}
	return s.writeLocked()
}

func (s *TitleStore) writeLocked() error {
	ids := make([]string, 0, len(s.typed))
	for id := range s.typed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write typed titles: %w", err)
	}
	return os.Rename(tmp, s.path)
}
