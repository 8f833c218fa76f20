package platform

import (
	"context"
	"strings"
)

// FileStorage is a Storage implementation layered directly on a FileSystem,
// keying each entry to a path under a fixed prefix — the same "write_file
// under storage root" shape as the teacher's kernel-syscall-backed Storage
// provider, minus the kernel syscall indirection.
type FileStorage struct {
	fs     FileSystem
	prefix string
}

func NewFileStorage(fs FileSystem, prefix string) *FileStorage {
	return &FileStorage{fs: fs, prefix: prefix}
}

func (s *FileStorage) keyPath(key string) string {
	return s.prefix + "/" + strings.ReplaceAll(key, "/", "_")
}

func (s *FileStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	exists, err := s.fs.Exists(ctx, s.keyPath(key))
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	data, err := s.fs.Read(ctx, s.keyPath(key))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.fs.Write(ctx, s.keyPath(key), value)
}

func (s *FileStorage) Delete(ctx context.Context, key string) error {
	exists, err := s.fs.Exists(ctx, s.keyPath(key))
	if err != nil || !exists {
		return err
	}
	return s.fs.Delete(ctx, s.keyPath(key))
}

func (s *FileStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := s.fs.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if prefix == "" || strings.HasPrefix(e.Name, prefix) {
			out = append(out, e.Name)
		}
	}
	return out, nil
}

func (s *FileStorage) Clear(ctx context.Context) error {
	return s.fs.Delete(ctx, s.prefix)
}
