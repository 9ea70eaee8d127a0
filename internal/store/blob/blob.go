package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"audioconv/internal/store"
)

// In-flight writes live under this prefix and are never addressable.
const tmpPrefix = ".tmp-"

// FileStore keeps every area in its own directory on the local filesystem.
type FileStore struct {
	dirs map[store.Area]string
}

// Ensure FileStore implements BlobStore
var _ store.BlobStore = (*FileStore)(nil)

// NewFileStore creates (if needed) the upload and output directories.
func NewFileStore(uploadDir, outputDir string) (*FileStore, error) {
	dirs := map[store.Area]string{
		store.AreaUploads: uploadDir,
		store.AreaOutputs: outputDir,
	}
	for area, dir := range dirs {
		if dir == "" {
			return nil, fmt.Errorf("directory for area %q cannot be empty", area)
		}
		dir = filepath.Clean(dir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s directory '%s': %w", area, dir, err)
		}
		dirs[area] = dir
	}
	return &FileStore{dirs: dirs}, nil
}

// path resolves name inside the area directory. Names must be local paths
// (no "..", no absolute paths) so a blob can never escape its area.
func (s *FileStore) path(area store.Area, name string) (string, error) {
	dir, ok := s.dirs[area]
	if !ok {
		return "", fmt.Errorf("unknown area %q", area)
	}
	base := filepath.Base(name)
	if name == "" || base == "." || strings.HasPrefix(base, tmpPrefix) ||
		strings.ContainsRune(name, '\\') || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidName, name)
	}
	return filepath.Join(dir, filepath.FromSlash(name)), nil
}

func (s *FileStore) Put(ctx context.Context, area store.Area, name string, r io.Reader) (string, error) {
	w, err := s.Create(ctx, area, name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Abort()
		return "", fmt.Errorf("write blob %s: %w", store.Ref(area, name), err)
	}
	return w.Commit()
}

// Create opens a temp file next to the final location; Commit renames it into place.
func (s *FileStore) Create(ctx context.Context, area store.Area, name string) (store.BlobWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	final, err := s.path(area, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", store.Ref(area, name), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), tmpPrefix+filepath.Base(final)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create blob %s: %w", store.Ref(area, name), err)
	}
	return &fileWriter{tmp: tmp, final: final, ref: store.Ref(area, name)}, nil
}

func (s *FileStore) Open(ctx context.Context, area store.Area, name string) (io.ReadCloser, store.BlobInfo, error) {
	p, err := s.path(area, name)
	if err != nil {
		return nil, store.BlobInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.BlobInfo{}, fmt.Errorf("%s: %w", store.Ref(area, name), store.ErrNotFound)
		}
		return nil, store.BlobInfo{}, fmt.Errorf("open blob %s: %w", store.Ref(area, name), err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, store.BlobInfo{}, fmt.Errorf("stat blob %s: %w", store.Ref(area, name), err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, store.BlobInfo{}, fmt.Errorf("%s: %w", store.Ref(area, name), store.ErrNotFound)
	}
	return f, store.BlobInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s *FileStore) Exists(ctx context.Context, area store.Area, name string) (bool, error) {
	p, err := s.path(area, name)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob %s: %w", store.Ref(area, name), err)
	}
	return !fi.IsDir(), nil
}

// Remove deletes a blob; removing a missing blob is not an error.
func (s *FileStore) Remove(ctx context.Context, area store.Area, name string) error {
	p, err := s.path(area, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", store.Ref(area, name), err)
	}
	// Drop the per-upload namespace directory once it is empty.
	if dir := filepath.Dir(p); dir != s.dirs[area] {
		os.Remove(dir)
	}
	return nil
}

type fileWriter struct {
	tmp   *os.File
	final string
	ref   string
	done  bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

func (w *fileWriter) Commit() (string, error) {
	if w.done {
		return "", fmt.Errorf("blob %s already finished", w.ref)
	}
	w.done = true
	// CreateTemp uses 0600; committed blobs get the same mode as a plain create.
	if err := w.tmp.Chmod(0o640); err != nil {
		w.tmp.Close()
		os.Remove(w.tmp.Name())
		return "", fmt.Errorf("chmod blob %s: %w", w.ref, err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return "", fmt.Errorf("close blob %s: %w", w.ref, err)
	}
	if err := os.Rename(w.tmp.Name(), w.final); err != nil {
		os.Remove(w.tmp.Name())
		return "", fmt.Errorf("commit blob %s: %w", w.ref, err)
	}
	return w.ref, nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("abort blob %s: %w", w.ref, err)
	}
	return nil
}
