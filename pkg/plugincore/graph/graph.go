// Package graph implements the plugin dependency graph.
//
// Nodes live in an arena and refer to each other by integer handle; a name
// index maps plugin names to handles. A node is either present (added with
// Add) or a placeholder that exists only because a present node points at
// it, such as an optional dependency that has not been added yet.
// Placeholders are released as soon as nothing references them.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph operations.
var (
	// ErrDuplicateNode is returned when adding a name that is already present.
	ErrDuplicateNode = errors.New("node already present")

	// ErrUnknownNode is returned when resolving a name that is not present.
	ErrUnknownNode = errors.New("unknown node")

	// ErrCycle matches every *CycleError.
	ErrCycle = errors.New("dependency cycle")
)

// CycleError reports a dependency cycle. Node is the node that was reached a
// second time while still on the traversal stack; Path lists the cycle from
// Node back to Node.
type CycleError struct {
	Node string
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected at %q: %s", e.Node, strings.Join(e.Path, " -> "))
}

// Is lets errors.Is(err, ErrCycle) match.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

type handle int

type node struct {
	name    string
	deps    []handle
	refs    int
	present bool
	live    bool
}

// Graph is a directed dependency graph. Edges point from a node to the nodes
// it depends on. Graph is not safe for concurrent use; the plugin registry
// serializes access.
type Graph struct {
	nodes []node
	index map[string]handle
	free  []handle
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]handle)}
}

// Add inserts a present node with edges to deps, in the given order.
// Duplicate dependency names are collapsed. If the new edges would close a
// cycle, Add returns a *CycleError and the graph is left unchanged.
func (g *Graph) Add(name string, deps []string) error {
	if h, ok := g.index[name]; ok && g.nodes[h].present {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}

	deps = dedupe(deps)
	if cycle := g.WouldCycle(name, deps); cycle != nil {
		return &CycleError{Node: name, Path: cycle}
	}

	h := g.ensure(name)
	g.nodes[h].present = true
	for _, d := range deps {
		dh := g.ensure(d)
		g.nodes[h].deps = append(g.nodes[h].deps, dh)
		g.nodes[dh].refs++
	}
	return nil
}

// WouldCycle reports the cycle that adding name with edges to deps would
// close, starting and ending at name, or nil if there is none. The graph is
// not modified.
func (g *Graph) WouldCycle(name string, deps []string) []string {
	for _, d := range deps {
		if d == name {
			return []string{name, name}
		}
	}
	// A cycle can only close through a node something already points at:
	// check whether any dependency can already reach name.
	target, ok := g.index[name]
	if !ok {
		return nil
	}
	for _, d := range deps {
		start, ok := g.index[d]
		if !ok {
			continue
		}
		if path := g.pathTo(start, target); path != nil {
			return append([]string{name}, path...)
		}
	}
	return nil
}

// Remove deletes a present node and its outgoing edges. If other nodes still
// depend on it, it remains as a placeholder. Remove reports whether the node
// was present.
func (g *Graph) Remove(name string) bool {
	h, ok := g.index[name]
	if !ok || !g.nodes[h].present {
		return false
	}

	deps := g.nodes[h].deps
	g.nodes[h].deps = nil
	g.nodes[h].present = false
	for _, dh := range deps {
		g.nodes[dh].refs--
		g.releaseIfUnused(dh)
	}
	g.releaseIfUnused(h)
	return true
}

// Has reports whether name is present.
func (g *Graph) Has(name string) bool {
	h, ok := g.index[name]
	return ok && g.nodes[h].present
}

// Dependents returns the present nodes with an edge to name, in arena
// order.
func (g *Graph) Dependents(name string) []string {
	target, ok := g.index[name]
	if !ok || g.nodes[target].refs == 0 {
		return nil
	}
	var out []string
	for i := range g.nodes {
		n := &g.nodes[i]
		if !n.live || !n.present {
			continue
		}
		for _, dh := range n.deps {
			if dh == target {
				out = append(out, n.name)
				break
			}
		}
	}
	return out
}

// Resolve returns roots and everything they transitively depend on, with
// every node listed after its dependencies. Roots are visited in the given
// order and edges in insertion order, so the result is deterministic.
// Placeholders are skipped. A root that is not present yields
// ErrUnknownNode; a cycle yields a *CycleError.
func (g *Graph) Resolve(roots []string) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make([]uint8, len(g.nodes))
	var stack []handle
	var order []string

	var visit func(h handle) error
	visit = func(h handle) error {
		switch color[h] {
		case black:
			return nil
		case gray:
			return g.cycleFromStack(stack, h)
		}
		color[h] = gray
		stack = append(stack, h)
		for _, dh := range g.nodes[h].deps {
			if !g.nodes[dh].present {
				continue
			}
			if err := visit(dh); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[h] = black
		order = append(order, g.nodes[h].name)
		return nil
	}

	for _, name := range roots {
		h, ok := g.index[name]
		if !ok || !g.nodes[h].present {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
		}
		if err := visit(h); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *Graph) cycleFromStack(stack []handle, h handle) *CycleError {
	start := 0
	for i, sh := range stack {
		if sh == h {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, sh := range stack[start:] {
		path = append(path, g.nodes[sh].name)
	}
	path = append(path, g.nodes[h].name)
	return &CycleError{Node: g.nodes[h].name, Path: path}
}

// pathTo returns the names along a path from start to target, or nil.
func (g *Graph) pathTo(start, target handle) []string {
	seen := make([]bool, len(g.nodes))
	var path []string
	var walk func(h handle) bool
	walk = func(h handle) bool {
		if seen[h] {
			return false
		}
		seen[h] = true
		path = append(path, g.nodes[h].name)
		if h == target {
			return true
		}
		for _, dh := range g.nodes[h].deps {
			if walk(dh) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if walk(start) {
		return path
	}
	return nil
}

func (g *Graph) ensure(name string) handle {
	if h, ok := g.index[name]; ok {
		return h
	}
	var h handle
	if n := len(g.free); n > 0 {
		h = g.free[n-1]
		g.free = g.free[:n-1]
		g.nodes[h] = node{name: name, live: true}
	} else {
		h = handle(len(g.nodes))
		g.nodes = append(g.nodes, node{name: name, live: true})
	}
	g.index[name] = h
	return h
}

func (g *Graph) releaseIfUnused(h handle) {
	n := &g.nodes[h]
	if n.present || n.refs > 0 || !n.live {
		return
	}
	delete(g.index, n.name)
	*n = node{}
	g.free = append(g.free, h)
}

func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
