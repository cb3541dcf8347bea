package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
)

const credentialExt = ".dat"

// FileCredentialStore keeps one JSON file per key under dir. Writes go
// through a temp file and rename so a reader never sees a partial record.
type FileCredentialStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileCredentialStore creates dir if needed.
func NewFileCredentialStore(dir string) (repository.CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credential dir: %w", err)
	}
	return &FileCredentialStore{dir: dir}, nil
}

func (s *FileCredentialStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: credential key %q", models.ErrInvalidRequest, key)
	}
	return filepath.Join(s.dir, key+credentialExt), nil
}

func (s *FileCredentialStore) Load(_ context.Context, key string) (*models.TokenRecord, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	b, err := os.ReadFile(p)
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var rec models.TokenRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode credentials %s: %w", key, err)
	}
	return &rec, nil
}

func (s *FileCredentialStore) Save(_ context.Context, key string, rec *models.TokenRecord) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, credentialExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, credentialExt))
	}
	return keys, nil
}
