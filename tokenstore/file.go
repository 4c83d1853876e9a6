package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File stores tokens as a JSON object in a single file readable only by its owner.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a file-backed store. The file is created on first Save.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required for file token store")
	}
	return &File{path: path}, nil
}

func (f *File) Load(ctx context.Context) (Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return Tokens{}, err
	}

	var tokens Tokens
	for k, v := range values {
		tokens.set(k, v)
	}
	return tokens, nil
}

func (f *File) Save(ctx context.Context, tokens Tokens) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	for _, kv := range tokens.entries() {
		if kv[1] == "" {
			delete(values, kv[0])
			continue
		}
		values[kv[0]] = kv[1]
	}
	return f.write(values)
}

func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (f *File) Close() error {
	return nil
}

func (f *File) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token file: %w", err)
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
