package plugin

import (
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"

	"github.com/qorzen/kernel/internal/kerrors"
)

// manifestFile is the on-disk shape of a plugin.json manifest; it is
// decoded into the package's own Manifest type so that every other file
// here deals only with Go values.
type manifestFile struct {
	ID                  string          `json:"id"`
	Version             string          `json:"version"`
	MinKernelVersion    string          `json:"min_kernel_version"`
	SupportedPlatforms  []string        `json:"supported_platforms"`
	Dependencies        []manifestDep   `json:"dependencies"`
	RequiredPermissions []string        `json:"required_permissions"`
	UIComponents        []string        `json:"ui_components"`
	MenuItems           []string        `json:"menu_items"`
	APIRoutes           []string        `json:"api_routes"`
	SettingsSchema      map[string]any  `json:"settings_schema,omitempty"`
	Assets              []string        `json:"assets,omitempty"`
	ResourceLimits      *ResourceLimits `json:"resource_limits,omitempty"`
	Signature           string          `json:"signature,omitempty"`
	PublicKey           string          `json:"public_key,omitempty"`
}

type manifestDep struct {
	ID         string `json:"id"`
	VersionReq string `json:"version_req"`
	Optional   bool   `json:"optional"`
}

// Discover concurrently walks every configured root for `plugin.json`
// bundle manifests, sniffing each candidate's MIME type before parsing so a
// stray non-JSON file doesn't abort the whole scan.
func Discover(roots []string) ([]Manifest, error) {
	var out []Manifest
	for _, root := range roots {
		paths, err := findManifestPaths(root)
		if err != nil {
			return nil, kerrors.New(kerrors.KindIO, "plugin.manifest", "discovery walk failed").
				WithCause(err).WithMeta("root", root)
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if mtype := mimetype.Detect(data); mtype.String() != "text/plain" && mtype.Extension() != ".json" {
				continue
			}
			m, err := parseManifest(data, path)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func findManifestPaths(root string) ([]string, error) {
	var paths []string
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole root
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := doublestar.Match("**/plugin.json", filepath.ToSlash(path)); ok || filepath.Base(path) == "plugin.json" {
			paths = append(paths, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return paths, err
}

func parseManifest(data []byte, sourcePath string) (Manifest, error) {
	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return Manifest{}, kerrors.New(kerrors.KindValidation, "plugin.manifest", "malformed manifest").
			WithCause(err).WithMeta("path", sourcePath)
	}
	if mf.ID == "" || mf.Version == "" {
		return Manifest{}, kerrors.Validation("plugin.manifest", "id and version are required").
			WithMeta("path", sourcePath)
	}

	deps := make([]Dependency, 0, len(mf.Dependencies))
	for _, d := range mf.Dependencies {
		deps = append(deps, Dependency{ID: d.ID, VersionReq: d.VersionReq, Optional: d.Optional})
	}

	return Manifest{
		ID:                  mf.ID,
		Version:             mf.Version,
		MinKernelVersion:    mf.MinKernelVersion,
		SupportedPlatforms:  mf.SupportedPlatforms,
		Dependencies:        deps,
		RequiredPermissions: mf.RequiredPermissions,
		UIComponents:        mf.UIComponents,
		MenuItems:           mf.MenuItems,
		APIRoutes:           mf.APIRoutes,
		SettingsSchema:      mf.SettingsSchema,
		Assets:              mf.Assets,
		ResourceLimits:      mf.ResourceLimits,
		SignaturePresent:    mf.Signature != "",
		Signature:           decodeHex(mf.Signature),
		PublicKey:           decodeHex(mf.PublicKey),
		SourcePath:          sourcePath,
	}, nil
}

func decodeHex(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
