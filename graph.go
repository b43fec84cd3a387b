// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import "errors"

// ErrSelfEdge is returned by AddEdge when from == to.
var ErrSelfEdge = errors.New("upkcore: self edge")

// NodeRef identifies a node in the DependencyGraph: either an ObjectIndex
// inside a named container, or a NativeClassHandle — a class resolved
// outside any table, identified by name instead of row (spec.md §3).
type NodeRef struct {
	Container   string
	Index       ObjectIndex
	NativeClass string
}

// ObjectNode builds a NodeRef for a regular table row.
func ObjectNode(container string, idx ObjectIndex) NodeRef {
	return NodeRef{Container: container, Index: idx}
}

// NativeClassNode builds a NodeRef for a class with no table row.
func NativeClassNode(container, className string) NodeRef {
	return NodeRef{Container: container, NativeClass: className}
}

// IsNativeClass reports whether n identifies a NativeClassHandle rather
// than a table row.
func (n NodeRef) IsNativeClass() bool {
	return n.NativeClass != ""
}

// DependencyGraph is a directed graph over NodeRef where an edge u -> v
// means "u must exist before v" (spec.md §4.E). It is a DAG if and only if
// the resolver's inputs are a valid container set.
type DependencyGraph struct {
	order    []NodeRef
	seen     map[NodeRef]bool
	adj      map[NodeRef][]NodeRef
	edgeSeen map[NodeRef]map[NodeRef]bool
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		seen:     make(map[NodeRef]bool),
		adj:      make(map[NodeRef][]NodeRef),
		edgeSeen: make(map[NodeRef]map[NodeRef]bool),
	}
}

// AddNode adds n if absent. Idempotent.
func (g *DependencyGraph) AddNode(n NodeRef) {
	if g.seen[n] {
		return
	}
	g.seen[n] = true
	g.order = append(g.order, n)
}

// AddEdge adds an edge from -> to, meaning from must exist before to.
// Self-edges are rejected with ErrSelfEdge and leave the graph unchanged.
// Both endpoints are added as nodes if absent. Duplicate edges collapse
// (edges are a set).
func (g *DependencyGraph) AddEdge(from, to NodeRef) error {
	if from == to {
		return ErrSelfEdge
	}
	g.AddNode(from)
	g.AddNode(to)
	if g.edgeSeen[from] == nil {
		g.edgeSeen[from] = make(map[NodeRef]bool)
	}
	if g.edgeSeen[from][to] {
		return nil
	}
	g.edgeSeen[from][to] = true
	g.adj[from] = append(g.adj[from], to)
	return nil
}

// EdgesOf returns the nodes n points to, in the order they were added.
// Callers must not mutate the returned slice.
func (g *DependencyGraph) EdgesOf(n NodeRef) []NodeRef {
	return g.adj[n]
}

// NodeCount returns the number of distinct nodes in the graph.
func (g *DependencyGraph) NodeCount() int {
	return len(g.order)
}

// HasNode reports whether n has been added to the graph.
func (g *DependencyGraph) HasNode(n NodeRef) bool {
	return g.seen[n]
}

// TopoSort returns a linear order consistent with the dependency DAG:
// post-order depth-first from every unvisited node (in insertion order),
// pushing each node onto a stack on completion; the result is that stack
// popped to a list, so each node appears before every node reachable from
// it through outgoing edges, i.e. after everything it depends on
// (spec.md §4.E).
//
// Cycles are not required to be well-formed input, but TopoSort always
// terminates: a visited-on-path set prevents infinite recursion, at the
// cost of producing only *a* total order (not a valid topological one) for
// the cyclic portion of the graph.
func (g *DependencyGraph) TopoSort() []NodeRef {
	finished := make(map[NodeRef]bool, len(g.order))
	onPath := make(map[NodeRef]bool)
	stack := make([]NodeRef, 0, len(g.order))

	var visit func(NodeRef)
	visit = func(n NodeRef) {
		if finished[n] || onPath[n] {
			return
		}
		onPath[n] = true
		for _, child := range g.adj[n] {
			visit(child)
		}
		onPath[n] = false
		finished[n] = true
		stack = append(stack, n)
	}

	for _, n := range g.order {
		visit(n)
	}

	out := make([]NodeRef, len(stack))
	for i, n := range stack {
		out[len(stack)-1-i] = n
	}
	return out
}
