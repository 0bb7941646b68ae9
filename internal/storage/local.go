package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tarhbox/backend/pkg/logger"
)

// LocalStorage keeps objects as plain files under a root directory,
// mirroring each logical key as a relative path.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalStorage{root: abs}, nil
}

// resolve maps a logical key onto the root directory and refuses anything
// that would land outside it.
func (l *LocalStorage) resolve(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	full := filepath.Join(l.root, filepath.FromSlash(key))
	if full != l.root && !strings.HasPrefix(full, l.root+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (l *LocalStorage) Save(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		_ = os.Remove(path)
		logger.Error("local_save_failed", err, map[string]interface{}{
			"key":  key,
			"size": size,
		})
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}

	logger.Info("local_save_success", map[string]interface{}{
		"key":          key,
		"size":         size,
		"content_type": contentType,
	})
	return nil
}

func (l *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, ErrNotFound
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ObjectInfo{}, err
	}
	if stat.IsDir() {
		file.Close()
		return nil, ObjectInfo{}, ErrNotFound
	}

	return file, ObjectInfo{Size: stat.Size()}, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Error("local_delete_failed", err, map[string]interface{}{"key": key})
		return err
	}
	return nil
}
