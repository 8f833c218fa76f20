package plugin

import (
	"crypto/ed25519"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/qorzen/kernel/internal/kerrors"
)

// PolicyChecker vets a plugin's declared permissions against the current
// account policy before the plugin is allowed to load. It is optional; a
// nil checker permits every declared permission.
type PolicyChecker func(requiredPermissions []string) error

// digest computes the blake3 digest a manifest's signature (when present)
// must cover: its id, version, and sorted required permissions.
func digest(m Manifest) []byte {
	perms := append([]string{}, m.RequiredPermissions...)
	sort.Strings(perms)
	payload := m.ID + "|" + m.Version + "|" + strings.Join(perms, ",")

	h := blake3.New()
	_, _ = h.Write([]byte(payload))
	return h.Sum(nil)
}

// verifySecurity runs stage 1 of the loading pipeline: manifest shape
// (already validated at parse time), platform support, signature when
// present, and declared permissions against policy.
func verifySecurity(m Manifest, platformName string, requireSignature bool, policy PolicyChecker) error {
	if len(m.SupportedPlatforms) > 0 && !contains(m.SupportedPlatforms, platformName) && !contains(m.SupportedPlatforms, "all") {
		return kerrors.New(kerrors.KindPlugin, "plugin.security", "unsupported platform").
			WithMeta("plugin_id", m.ID).WithMeta("platform", platformName)
	}

	if requireSignature || m.SignaturePresent {
		if err := verifySignature(m); err != nil {
			return err
		}
	}

	if policy != nil {
		if err := policy(m.RequiredPermissions); err != nil {
			return kerrors.New(kerrors.KindPermission, "plugin.security", "declared permissions rejected by policy").
				WithCause(err).WithMeta("plugin_id", m.ID)
		}
	}

	return nil
}

func verifySignature(m Manifest) error {
	if len(m.Signature) == 0 || len(m.PublicKey) != ed25519.PublicKeySize {
		return kerrors.New(kerrors.KindPlugin, "plugin.security", "signature required but missing or malformed").
			WithMeta("plugin_id", m.ID)
	}
	if !ed25519.Verify(ed25519.PublicKey(m.PublicKey), digest(m), m.Signature) {
		return kerrors.New(kerrors.KindPlugin, "plugin.security", "signature verification failed").
			WithMeta("plugin_id", m.ID)
	}
	return nil
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
