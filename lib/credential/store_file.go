// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileStore keeps one file per key under a directory. Key components
// are path-escaped, so "membrane-proof/host@example.com" becomes
// <dir>/membrane-proof/host@example.com and slashes inside an
// identity cannot escape the directory.
type FileStore struct {
	directory string
}

// NewFileStore returns a store rooted at directory, creating it.
func NewFileStore(directory string) (*FileStore, error) {
	if directory == "" {
		return nil, fmt.Errorf("file store: directory is required")
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{directory: directory}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	components := strings.Split(key, "/")
	for index, component := range components {
		components[index] = url.PathEscape(component)
	}
	return filepath.Join(append([]string{s.directory}, components...)...), nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Put writes the value to a temporary file and renames it into place.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, value, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("installing %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.directory, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		relative, err := filepath.Rel(s.directory, path)
		if err != nil {
			return err
		}
		components := strings.Split(filepath.ToSlash(relative), "/")
		for index, component := range components {
			unescaped, err := url.PathUnescape(component)
			if err != nil {
				return nil
			}
			components[index] = unescaped
		}
		key := strings.Join(components, "/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FileStore) Close() error { return nil }
