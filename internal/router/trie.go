package router

import (
	"strings"

	"github.com/qorzen/kernel/internal/kerrors"
)

// node is one path segment of a method's route trie. Static children are
// tried before the param child, so a registered "/widgets/active" always
// wins over "/widgets/{id}" for the literal path "/widgets/active".
type node struct {
	static    map[string]*node
	param     *node
	paramName string
	route     *Route
}

func newNode() *node {
	return &node{static: make(map[string]*node)}
}

// trie is a small hand-rolled radix-style router: one root node per HTTP
// method, segments as edges, {name} segments as a single param child per
// node. Routing data structures are exactly the kind of thing worth
// hand-rolling rather than pulling in a library for — gin's own router is
// reserved for the transport adapter, not this dispatch core.
type trie struct {
	roots map[string]*node
}

func newTrie() *trie {
	return &trie{roots: make(map[string]*node)}
}

func segments(pattern string) []string {
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return nil
	}
	return strings.Split(pattern, "/")
}

// insert registers route under method+pattern, rejecting an exact
// (method, pattern) collision with an existing route.
func (t *trie) insert(method, pattern string, route *Route) error {
	root, ok := t.roots[method]
	if !ok {
		root = newNode()
		t.roots[method] = root
	}

	cur := root
	for _, seg := range segments(pattern) {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			if cur.param == nil {
				cur.param = newNode()
				cur.param.paramName = name
			}
			cur = cur.param
		} else {
			next, ok := cur.static[seg]
			if !ok {
				next = newNode()
				cur.static[seg] = next
			}
			cur = next
		}
	}

	if cur.route != nil {
		return kerrors.New(kerrors.KindConflict, "router.trie", "route already registered").
			WithMeta("method", method).WithMeta("pattern", pattern)
	}
	cur.route = route
	return nil
}

// match resolves method+path to its registered Route and the path params
// bound along the way. Static segments are preferred over a param segment
// at the same position.
func (t *trie) match(method, path string) (*Route, map[string]string, bool) {
	root, ok := t.roots[method]
	if !ok {
		return nil, nil, false
	}

	params := make(map[string]string)
	route, ok := matchSegments(root, segments(path), params)
	if !ok {
		return nil, nil, false
	}
	return route, params, true
}

func matchSegments(n *node, segs []string, params map[string]string) (*Route, bool) {
	if len(segs) == 0 {
		if n.route == nil {
			return nil, false
		}
		return n.route, true
	}

	head, rest := segs[0], segs[1:]

	if next, ok := n.static[head]; ok {
		if route, ok := matchSegments(next, rest, params); ok {
			return route, true
		}
	}

	if n.param != nil {
		params[n.param.paramName] = head
		if route, ok := matchSegments(n.param, rest, params); ok {
			return route, true
		}
		delete(params, n.param.paramName)
	}

	return nil, false
}
