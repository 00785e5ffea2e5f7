package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileArchive keeps generated reports as files in a local directory
type FileArchive struct {
	dir string
}

// Ensure FileArchive implements Archive
var _ Archive = (*FileArchive)(nil)

// NewFileArchive creates dir if needed and returns an archive rooted at it
func NewFileArchive(dir string) (*FileArchive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

func (f *FileArchive) path(filename string) (string, error) {
	if err := checkReportName(filename); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, filename), nil
}

func (f *FileArchive) Store(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", filename, err)
	}

	logrus.WithFields(logrus.Fields{"file": p, "bytes": len(data)}).Info("Archived report to disk")
	return nil
}

func (f *FileArchive) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("report %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", filename, err)
	}
	return data, nil
}

func (f *FileArchive) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileArchive) Delete(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("report %s: %w", filename, ErrNotFound)
		}
		return fmt.Errorf("failed to delete report %s: %w", filename, err)
	}
	return nil
}
