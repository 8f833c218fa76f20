package plugin

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/qorzen/kernel/internal/kerrors"
)

// ExtractBundle unpacks a .zip plugin bundle (a plugin.json plus its
// assets) into destDir, using klauspost/compress's faster flate
// decompressor in place of the standard library's. Entries that would
// escape destDir are rejected outright rather than clamped.
func ExtractBundle(bundlePath, destDir string) error {
	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return kerrors.New(kerrors.KindIO, "plugin.bundle", "open failed").WithCause(err).WithMeta("path", bundlePath)
	}
	defer r.Close()
	r.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})

	destClean := filepath.Clean(destDir)
	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if target != destClean && !strings.HasPrefix(target, destClean+string(os.PathSeparator)) {
			return kerrors.Validation("plugin.bundle", "entry escapes destination").WithMeta("entry", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return kerrors.New(kerrors.KindIO, "plugin.bundle", "mkdir failed").WithCause(err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return kerrors.New(kerrors.KindIO, "plugin.bundle", "mkdir failed").WithCause(err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return kerrors.New(kerrors.KindIO, "plugin.bundle", "entry open failed").WithCause(err).WithMeta("entry", f.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return kerrors.New(kerrors.KindIO, "plugin.bundle", "entry create failed").WithCause(err).WithMeta("entry", f.Name)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return kerrors.New(kerrors.KindIO, "plugin.bundle", "entry write failed").WithCause(err).WithMeta("entry", f.Name)
	}
	return nil
}
