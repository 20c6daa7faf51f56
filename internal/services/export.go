package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSaver hands a finished download to the host environment
type FileSaver interface {
	// Save stores the contents of r under name and returns where it ended up
	Save(name string, r io.Reader) (string, error)
}

// DirSaver saves downloads into a directory. Files are written to a
// temporary name first and renamed into place once complete.
type DirSaver struct {
	Dir string
}

// NewDirSaver creates a saver for dir
func NewDirSaver(dir string) *DirSaver {
	return &DirSaver{Dir: dir}
}

// Save implements FileSaver
func (s *DirSaver) Save(name string, r io.Reader) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close export: %w", err)
	}

	target := filepath.Join(s.Dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}
	return target, nil
}
