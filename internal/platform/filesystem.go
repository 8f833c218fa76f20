package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/qorzen/kernel/internal/kerrors"
)

// OSFileSystem is a FileSystem rooted at a directory; every path is
// resolved relative to root, and leading ".." components are clamped at
// root so a path cannot escape it.
type OSFileSystem struct {
	root string
}

func NewOSFileSystem(root string) *OSFileSystem {
	return &OSFileSystem{root: root}
}

func (f *OSFileSystem) resolve(path string) (string, error) {
	clean := filepath.Join(f.root, filepath.Clean("/"+path))
	if !strings.HasPrefix(clean, filepath.Clean(f.root)) {
		return "", kerrors.Validation("platform.filesystem", "path escapes root").WithMeta("path", path)
	}
	return clean, nil
}

func (f *OSFileSystem) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.filesystem", "read failed").WithCause(err).WithMeta("path", path)
	}
	return data, nil
}

func (f *OSFileSystem) Write(ctx context.Context, path string, data []byte) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.filesystem", "mkdir failed").WithCause(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.filesystem", "write failed").WithCause(err).WithMeta("path", path)
	}
	return nil
}

func (f *OSFileSystem) Delete(ctx context.Context, path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.filesystem", "delete failed").WithCause(err).WithMeta("path", path)
	}
	return nil
}

func (f *OSFileSystem) List(ctx context.Context, path string) ([]FileInfo, error) {
	full, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.filesystem", "list failed").WithCause(err).WithMeta("path", path)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Name:     e.Name(),
			Path:     filepath.Join(path, e.Name()),
			Size:     info.Size(),
			IsDir:    e.IsDir(),
			Mode:     info.Mode().String(),
			Modified: info.ModTime(),
		})
	}
	return out, nil
}

func (f *OSFileSystem) Mkdir(ctx context.Context, path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.filesystem", "mkdir failed").WithCause(err).WithMeta("path", path)
	}
	return nil
}

func (f *OSFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	full, err := f.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, kerrors.New(kerrors.KindIO, "platform.filesystem", "stat failed").WithCause(err)
}

func (f *OSFileSystem) Metadata(ctx context.Context, path string) (FileInfo, error) {
	full, err := f.resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return FileInfo{}, kerrors.New(kerrors.KindIO, "platform.filesystem", "stat failed").WithCause(err).WithMeta("path", path)
	}
	return FileInfo{
		Name:     info.Name(),
		Path:     path,
		Size:     info.Size(),
		IsDir:    info.IsDir(),
		Mode:     info.Mode().String(),
		Modified: info.ModTime(),
	}, nil
}
