package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists tokens in a single JSON file readable only by the owner.
// Used on machines without a usable keychain (CI runners, containers).
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a token store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) SaveToken(server, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.read()
	if err != nil {
		return err
	}
	tokens[server] = token
	return f.write(tokens)
}

func (f *FileStore) LoadToken(server string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.read()
	if err != nil {
		return "", err
	}
	token, ok := tokens[server]
	if !ok || token == "" {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

func (f *FileStore) DeleteToken(server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := tokens[server]; !ok {
		return nil
	}
	delete(tokens, server)
	return f.write(tokens)
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	tokens := make(map[string]string)
	if len(data) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return tokens, nil
}

func (f *FileStore) write(tokens map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
