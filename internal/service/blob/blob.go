package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type (
	// Store writes attachment bytes under a directory and hands back the
	// generated filename as the opaque reference.
	Store struct {
		dir string
	}
)

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put stores raw bytes and returns the reference to fetch them later.
// The name is a fresh uuid plus the sanitized extension of the suggested name.
func (s *Store) Put(data []byte, suggestedName string) (string, error) {
	ref := uuid.NewString() + sanitizeExt(suggestedName)
	path := filepath.Join(s.dir, ref)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return ref, nil
}

// Dir is the directory served for blob fetches.
func (s *Store) Dir() string {
	return s.dir
}

// sanitizeExt keeps only a short alphanumeric extension, lowercased.
// Anything else (dotless names, path tricks, oversized extensions) yields "".
func sanitizeExt(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	ext := strings.ToLower(name[idx+1:])
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}
