package plugin

import (
	"fmt"
	"strings"

	"github.com/qorzen/kernel/internal/kerrors"
)

// graph is the dependency graph built over a discovered manifest set:
// mandatory edges id -> dep.id feed cycle detection, optional edges feed
// only the load order.
type graph struct {
	manifests map[string]Manifest
	mandatory map[string][]string
	optional  map[string][]string
}

// buildGraph indexes manifests by id and splits each manifest's
// dependencies into mandatory and optional edge sets, keeping only edges
// whose target manifest is present and whose version_req the target's
// declared version satisfies.
func buildGraph(manifests []Manifest) *graph {
	g := &graph{
		manifests: make(map[string]Manifest, len(manifests)),
		mandatory: make(map[string][]string, len(manifests)),
		optional:  make(map[string][]string, len(manifests)),
	}
	for _, m := range manifests {
		g.manifests[m.ID] = m
	}
	for _, m := range manifests {
		for _, dep := range m.Dependencies {
			target, ok := g.manifests[dep.ID]
			if !ok || !satisfiesRange(target.Version, dep.VersionReq) {
				continue
			}
			if dep.Optional {
				g.optional[m.ID] = append(g.optional[m.ID], dep.ID)
			} else {
				g.mandatory[m.ID] = append(g.mandatory[m.ID], dep.ID)
			}
		}
	}
	return g
}

// tarjanSCC returns every strongly connected component of the mandatory
// edge set. An SCC of size > 1 is a dependency cycle.
func (g *graph) tarjanSCC() [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.mandatory[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for id := range g.manifests {
		if _, seen := indices[id]; !seen {
			strongconnect(id)
		}
	}
	return sccs
}

// cycles reports a kerrors.KindDependency error naming the first cycle
// found, or nil if the mandatory dependency graph is acyclic.
func (g *graph) cycles() error {
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 {
			return kerrors.New(kerrors.KindDependency, "plugin.graph", "dependency cycle").
				WithMeta("cycle", strings.Join(scc, " -> "))
		}
	}
	return nil
}

// loadOrder returns a topological order over every manifest, honoring both
// mandatory and optional edges (optional edges influence ordering but were
// excluded from cycle detection).
func (g *graph) loadOrder() ([]string, error) {
	if err := g.cycles(); err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		if visiting[id] {
			return kerrors.New(kerrors.KindDependency, "plugin.graph", "dependency cycle").
				WithMeta("cycle", id)
		}
		visiting[id] = true
		for _, dep := range g.mandatory[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		for _, dep := range g.optional[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[id] = false
		visited[id] = true
		order = append(order, id)
		return nil
	}

	ids := make([]string, 0, len(g.manifests))
	for id := range g.manifests {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *graph) String() string {
	return fmt.Sprintf("graph(%d manifests)", len(g.manifests))
}
