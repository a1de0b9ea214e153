package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	storedPrefix    = "received_"
	storedFileMode  = 0o644
	storeDirMode    = 0o755
	tempFilePattern = ".received-*.tmp"
)

var ErrInvalidFileName = errors.New("invalid file name")

// DirStore writes assembled files into a single directory, naming each one
// after the uploaded file with a fixed prefix. A later upload with the same
// name replaces the earlier file.
type DirStore struct {
	dir string
}

// NewDirStore creates dir if needed and resolves it to an absolute path.
func NewDirStore(dir string) (*DirStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve received files directory: %w", err)
	}
	if err := os.MkdirAll(abs, storeDirMode); err != nil {
		return nil, fmt.Errorf("create received files directory: %w", err)
	}
	return &DirStore{dir: abs}, nil
}

func (s *DirStore) Dir() string { return s.dir }

// Save writes data atomically and returns the absolute path of the file.
// Directory components in fileName are ignored.
func (s *DirStore) Save(fileName string, data []byte) (string, error) {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}
	target := filepath.Join(s.dir, storedPrefix+base)

	tmp, err := os.CreateTemp(s.dir, tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, storedFileMode); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return target, nil
}
