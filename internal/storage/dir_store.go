package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

const metaSuffix = ".meta.json"

// DirStore mirrors uploads into a local directory. Keys map to paths below
// the base directory; each object gets a metadata sidecar:
//
//	<base>/
//	  toen/
//	    chapters/lecture1.pdf
//	    chapters/lecture1.pdf.meta.json
type DirStore struct {
	basePath string
	mu       sync.RWMutex
}

// Metadata describes one stored object.
type Metadata struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	ContentType string    `json:"content_type"`
	Source      string    `json:"source"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ErrNotFound is returned for keys with no stored object.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return stderrors.As(err, &nf)
}

// NewDirStore creates the base directory if needed.
func NewDirStore(basePath string) (*DirStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.ConfigRequired("storage.path")
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, errors.NewError(errors.CategoryFileSystem, "create storage directory").
			WithCause(err).
			WithContext("path", basePath).
			Build()
	}
	return &DirStore{basePath: basePath}, nil
}

// Upload copies localPath to key. An existing object is replaced atomically.
func (s *DirStore) Upload(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.objectPath(key)
	if err != nil {
		return err
	}

	// #nosec G304 -- localPath is an engine output path
	src, err := os.Open(localPath)
	if err != nil {
		return errors.NewError(errors.CategoryFileSystem, "artifact not readable").
			WithCause(err).
			WithContext("path", localPath).
			Build()
	}
	defer func() { _ = src.Close() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return s.writeError("create object directory", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return s.writeError("create temp file", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return s.writeError("copy artifact", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return s.writeError("move artifact into place", key, err)
	}

	meta := Metadata{
		Key:         key,
		Size:        size,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		ContentType: ContentTypePDF,
		Source:      localPath,
		UploadedAt:  time.Now().UTC(),
	}
	if err := writeMetadata(target+metaSuffix, meta); err != nil {
		return s.writeError("write metadata", key, err)
	}
	return nil
}

// Stat returns the metadata stored for key.
func (s *DirStore) Stat(key string) (Metadata, error) {
	target, err := s.objectPath(key)
	if err != nil {
		return Metadata{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 -- path is confined to the base directory
	data, err := os.ReadFile(target + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrNotFound{Key: key}
		}
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}

// List returns every stored key in lexical order.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk objects: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key and its metadata.
func (s *DirStore) Delete(key string) error {
	target, err := s.objectPath(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete object: %w", err)
	}
	_ = os.Remove(target + metaSuffix)
	return nil
}

// objectPath resolves key below the base directory and rejects keys that
// would escape it.
func (s *DirStore) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.Trim(key, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) ||
		strings.HasSuffix(clean, metaSuffix) {
		return "", errors.ValidationFailed("key", "invalid object key "+key)
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *DirStore) writeError(msg, key string, cause error) error {
	return errors.StorageError(msg).
		WithCause(cause).
		WithContext("key", key).
		WithContext("path", s.basePath).
		Build()
}

func writeMetadata(path string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
