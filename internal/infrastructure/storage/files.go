package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/ports"
)

// DiskStore keeps downloaded icons, images and extracted content under one root directory.
type DiskStore struct {
	root string
}

var _ ports.FileStore = (*DiskStore)(nil)

// NewDiskStore returns a store rooted at dir. The directory is created lazily.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{root: dir}
}

// Root returns the configured directory.
func (s *DiskStore) Root() string {
	return s.root
}

// WriteFile stores data at rel, creating parent directories, and returns the slash-separated relative path.
func (s *DiskStore) WriteFile(rel string, data []byte) (string, error) {
	full, clean, err := s.resolve(rel)
	if err != nil {
		return "", crawlerr.IO("write "+rel, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", crawlerr.IO("create directory for "+clean, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", crawlerr.IO("write "+clean, err)
	}
	return clean, nil
}

// ReadFile returns the contents stored at rel.
func (s *DiskStore) ReadFile(rel string) ([]byte, error) {
	full, clean, err := s.resolve(rel)
	if err != nil {
		return nil, crawlerr.IO("read "+rel, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, crawlerr.IO("read "+clean, err)
	}
	return data, nil
}

// Exists reports whether a regular file is stored at rel.
func (s *DiskStore) Exists(rel string) bool {
	full, _, err := s.resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

func (s *DiskStore) resolve(rel string) (string, string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + rel))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", "", fmt.Errorf("empty path")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), clean, nil
}
