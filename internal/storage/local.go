package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when an archived object does not exist.
var ErrNotFound = errors.New("object not found")

// LocalArchive keeps objects under a directory. It stands in for S3 when no
// bucket is configured.
type LocalArchive struct {
	root string
}

func NewLocalArchive(root string) *LocalArchive {
	return &LocalArchive{root: filepath.Clean(root)}
}

// cleanKey normalises a slash separated key and rejects keys that would
// leave the archive root.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return clean, nil
}

func (a *LocalArchive) file(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.root, filepath.FromSlash(clean)), nil
}

// Put writes through a temporary file so readers never see a partial object.
func (a *LocalArchive) Put(ctx context.Context, obj Object) (string, error) {
	dst, err := a.file(obj.Key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, obj.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write object %s: %w", obj.Key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store object %s: %w", obj.Key, err)
	}
	return "file://" + filepath.ToSlash(dst), nil
}

func (a *LocalArchive) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = strings.TrimLeft(prefix, "/")
	var objects []ObjectInfo
	err := filepath.WalkDir(a.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Link returns a file URL; local objects do not expire.
func (a *LocalArchive) Link(ctx context.Context, key string, expires time.Duration) (string, error) {
	p, err := a.file(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(p), nil
}

var _ Archive = (*LocalArchive)(nil)
