// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saferwall/upkcore/internal/log"
)

// ErrUnresolvedContainer is returned when the resolver cannot find a
// container referenced by name; fatal to the enclosing load.
var ErrUnresolvedContainer = errors.New("upkcore: unresolved container")

// ErrUnresolvedImport is returned when an import row has no matching
// export, import, or native class in its target container; fatal.
var ErrUnresolvedImport = errors.New("upkcore: unresolved import")

// ContainerResolver is the interface the Resolver and Loader demand from
// outside (spec.md §6): resolve a container by name, check whether one is
// already cached, and publish a newly decoded one. *ContainerCache
// satisfies it.
type ContainerResolver interface {
	Resolve(name string) *Container
	IsCached(name string) bool
	Add(container *Container)
}

// Resolver walks table rows to enumerate dependencies, including
// cross-container import-to-export resolution and native-class fallback
// (spec.md §4.F).
type Resolver struct {
	cache  ContainerResolver
	logger *log.Helper
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger attaches a diagnostic logger.
func WithResolverLogger(h *log.Helper) ResolverOption {
	return func(r *Resolver) { r.logger = h }
}

// NewResolver returns a Resolver backed by cache.
func NewResolver(cache ContainerResolver, opts ...ResolverOption) *Resolver {
	r := &Resolver{cache: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddObjectDependencies enriches graph with the transitive closure of
// edges reachable from root, via the BFS queue algorithm in spec.md §4.F.
func (r *Resolver) AddObjectDependencies(graph *DependencyGraph, root NodeRef) error {
	graph.AddNode(root)
	queue := []NodeRef{root}
	expanded := make(map[NodeRef]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.IsNativeClass() || expanded[current] {
			continue
		}
		expanded[current] = true

		container := r.cache.Resolve(current.Container)
		if container == nil {
			return fmt.Errorf("%w: %q", ErrUnresolvedContainer, current.Container)
		}
		row, err := container.GetRow(current.Index)
		if err != nil {
			return err
		}

		switch row.Tag {
		case TagImport:
			imp := row.Import
			if !imp.Outer.IsNull() {
				outerNode := ObjectNode(current.Container, imp.Outer)
				if err := graph.AddEdge(outerNode, current); err != nil {
					return err
				}
				queue = append(queue, outerNode)
			}

			native, err := container.IsNative(*imp)
			if err != nil {
				return err
			}
			if !native {
				fullName, err := container.GetFullName(current.Index)
				if err != nil {
					return err
				}
				target, err := r.resolveImport(*imp, fullName, container)
				if err != nil {
					return err
				}
				if err := graph.AddEdge(target, current); err != nil {
					return err
				}
				if !target.IsNativeClass() {
					queue = append(queue, target)
				}
			}

		case TagExport:
			exp := row.Export
			for _, ref := range [4]ObjectIndex{exp.OuterRef, exp.ClassRef, exp.SuperRef, exp.ArchetypeRef} {
				if ref.IsNull() {
					continue
				}
				refNode := ObjectNode(current.Container, ref)
				if err := graph.AddEdge(refNode, current); err != nil {
					return err
				}
				queue = append(queue, refNode)
			}
		}
	}
	return nil
}

// resolveImport computes the cross-container target of row, owned by
// container, per spec.md §4.F "resolve_import": find the target container
// from row's outer chain, then search its exports, then its imports, then
// its native classes for an object whose full name matches.
func (r *Resolver) resolveImport(row ImportRow, fullName string, container *Container) (NodeRef, error) {
	top, err := container.topLevelImport(row)
	if err != nil {
		return NodeRef{}, err
	}
	targetName, err := container.Names().Resolve(top.ObjectName)
	if err != nil {
		return NodeRef{}, err
	}
	target := r.cache.Resolve(targetName)
	if target == nil {
		return NodeRef{}, fmt.Errorf("%w: %q", ErrUnresolvedContainer, targetName)
	}

	leaf := leafSegment(fullName)

	for i, exp := range target.Exports() {
		name, err := target.Names().Resolve(exp.ObjectName)
		if err != nil {
			return NodeRef{}, err
		}
		if name != leaf {
			continue
		}
		full, err := target.GetFullName(FromExport(i))
		if err != nil {
			return NodeRef{}, err
		}
		if full == fullName {
			return ObjectNode(targetName, FromExport(i)), nil
		}
	}

	for i, imp := range target.Imports() {
		name, err := target.Names().Resolve(imp.ObjectName)
		if err != nil {
			return NodeRef{}, err
		}
		if name != leaf {
			continue
		}
		full, err := target.GetFullName(FromImport(i))
		if err != nil {
			return NodeRef{}, err
		}
		if full == fullName {
			return ObjectNode(targetName, FromImport(i)), nil
		}
	}

	if _, ok := target.FindClass(leaf); ok {
		if r.logger != nil {
			r.logger.Debugf("resolved %q to native class %q in %q", fullName, leaf, targetName)
		}
		return NativeClassNode(targetName, leaf), nil
	}

	return NodeRef{}, fmt.Errorf("%w: %q", ErrUnresolvedImport, fullName)
}

// leafSegment returns the last '.'-separated component of a full name.
func leafSegment(fullName string) string {
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}
