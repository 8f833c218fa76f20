package plugin

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(body), 0o644))
}

func TestDiscoverFindsManifestsUnderRoot(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "com.example.widgets"), `{
		"id": "com.example.widgets",
		"version": "1.2.3",
		"required_permissions": ["widgets.read"]
	}`)
	writeManifest(t, filepath.Join(root, "com.example.invoices"), `{
		"id": "com.example.invoices",
		"version": "2.0.0"
	}`)

	manifests, err := Discover([]string{root})
	require.NoError(t, err)
	require.Len(t, manifests, 2)

	ids := map[string]Manifest{}
	for _, m := range manifests {
		ids[m.ID] = m
	}
	require.Contains(t, ids, "com.example.widgets")
	assert.Equal(t, "1.2.3", ids["com.example.widgets"].Version)
	assert.Equal(t, []string{"widgets.read"}, ids["com.example.widgets"].RequiredPermissions)
}

func TestDiscoverRejectsMalformedManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{not json`)

	_, err := Discover([]string{root})
	assert.Error(t, err)
}

func TestDiscoverMissingRootIsNotAnError(t *testing.T) {
	manifests, err := Discover([]string{filepath.Join(t.TempDir(), "does-not-exist")})
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestParseManifestDecodesHexSignature(t *testing.T) {
	m, err := parseManifest([]byte(`{
		"id": "com.example.widgets",
		"version": "1.0.0",
		"signature": "deadbeef"
	}`), "plugin.json")
	require.NoError(t, err)
	assert.True(t, m.SignaturePresent)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, m.Signature)
}

func TestExtractBundleRejectsZipSlip(t *testing.T) {
	bundlePath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(bundlePath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("../../escape.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("pwned"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	err = ExtractBundle(bundlePath, t.TempDir())
	assert.Error(t, err)
}

func TestExtractBundleWritesFiles(t *testing.T) {
	bundlePath := filepath.Join(t.TempDir(), "good.zip")
	f, err := os.Create(bundlePath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("plugin.json")
	require.NoError(t, err)
	_, err = entry.Write([]byte(`{"id":"com.example.widgets","version":"1.0.0"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	require.NoError(t, ExtractBundle(bundlePath, dest))

	data, err := os.ReadFile(filepath.Join(dest, "plugin.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "com.example.widgets")
}

func TestSatisfiesRange(t *testing.T) {
	cases := []struct {
		version, req string
		want         bool
	}{
		{"1.2.3", "*", true},
		{"1.2.3", "", true},
		{"1.2.3", "1.2.3", true},
		{"1.2.4", "1.2.3", false},
		{"1.5.0", "^1.2.3", true},
		{"2.0.0", "^1.2.3", false},
		{"1.1.0", "^1.2.3", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, satisfiesRange(c.version, c.req), "version=%s req=%s", c.version, c.req)
	}
}
