package plugin

import (
	"sort"
	"strings"
)

// Discover finds the manifests most relevant to a free-text intent,
// scoring on id/permission/route word overlap the way the retrieval
// pack's service registry scores tool relevance.
func (r *Registry) Discover(intent string, limit int) []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intentLower := strings.ToLower(intent)
	type scored struct {
		m     Manifest
		score float64
	}
	var results []scored

	for _, m := range r.manifests {
		score := relevance(intentLower, m)
		if score > 0 {
			results = append(results, scored{m: m, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })

	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	out := make([]Manifest, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, results[i].m)
	}
	return out
}

func relevance(intent string, m Manifest) float64 {
	score := 0.0

	if strings.Contains(intent, strings.ToLower(m.ID)) {
		score += 10.0
	}

	for _, perm := range m.RequiredPermissions {
		if resource, _, ok := splitPermissionWord(perm); ok && strings.Contains(intent, resource) {
			score += 3.0
		}
	}

	for _, route := range m.APIRoutes {
		for _, word := range strings.FieldsFunc(route, func(r rune) bool { return r == '/' || r == '-' || r == '_' }) {
			if word != "" && strings.Contains(intent, strings.ToLower(word)) {
				score += 2.0
			}
		}
	}

	return score
}

func splitPermissionWord(s string) (resource, action string, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return strings.ToLower(s[:i]), strings.ToLower(s[i+1:]), true
		}
	}
	return "", "", false
}
