package sandbox

import (
	"context"
	"strings"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/platform"
)

// ScopedFileSystem is the sandboxed file_system proxy: it rejects any path
// escape attempt outright rather than clamping it, on top of whatever the
// underlying provider already enforces.
type ScopedFileSystem struct {
	pluginID string
	inner    platform.FileSystem
}

func newScopedFileSystem(pluginID string, inner platform.FileSystem) *ScopedFileSystem {
	return &ScopedFileSystem{pluginID: pluginID, inner: inner}
}

func (f *ScopedFileSystem) guard(path string) error {
	if strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return kerrors.New(kerrors.KindPermission, "sandbox.file_system", "path escapes plugin scope").
			WithMeta("plugin_id", f.pluginID).WithMeta("path", path)
	}
	return nil
}

func (f *ScopedFileSystem) Read(ctx context.Context, path string) ([]byte, error) {
	if err := f.guard(path); err != nil {
		return nil, err
	}
	return f.inner.Read(ctx, path)
}

func (f *ScopedFileSystem) Write(ctx context.Context, path string, data []byte) error {
	if err := f.guard(path); err != nil {
		return err
	}
	return f.inner.Write(ctx, path, data)
}

func (f *ScopedFileSystem) Delete(ctx context.Context, path string) error {
	if err := f.guard(path); err != nil {
		return err
	}
	return f.inner.Delete(ctx, path)
}

func (f *ScopedFileSystem) List(ctx context.Context, path string) ([]platform.FileInfo, error) {
	if path != "" {
		if err := f.guard(path); err != nil {
			return nil, err
		}
	}
	return f.inner.List(ctx, path)
}

func (f *ScopedFileSystem) Mkdir(ctx context.Context, path string) error {
	if err := f.guard(path); err != nil {
		return err
	}
	return f.inner.Mkdir(ctx, path)
}

func (f *ScopedFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	if err := f.guard(path); err != nil {
		return false, err
	}
	return f.inner.Exists(ctx, path)
}

func (f *ScopedFileSystem) Metadata(ctx context.Context, path string) (platform.FileInfo, error) {
	if err := f.guard(path); err != nil {
		return platform.FileInfo{}, err
	}
	return f.inner.Metadata(ctx, path)
}
