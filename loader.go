// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"fmt"

	"github.com/saferwall/upkcore/internal/log"
)

// DefaultMaxGraphNodes is the default node limit for the dependency graph of
// a single Load, the same defensive-default pattern as file.go's
// MaxDefaultCOFFSymbolsCount/MaxDefaultRelocEntriesCount. The limit is
// checked once the graph is fully built and before any object is
// materialized; it does not stop the graph from growing while it is built.
const DefaultMaxGraphNodes = 1 << 20

// LoaderOptions configures a Loader, mirroring file.go's Options struct.
type LoaderOptions struct {
	// MaxGraphNodes is the largest dependency graph one Load/LoadFile call
	// accepts; a larger graph fails the call before materialization. Zero
	// means DefaultMaxGraphNodes.
	MaxGraphNodes int

	// Codecs is the per-class body serializer registry new Containers are
	// decoded with, unless a caller-supplied ContainerOption overrides it.
	Codecs ObjectCodecRegistry

	// Logger is shared with the Loader's Resolver and every Container it
	// decodes, unless overridden per call.
	Logger *log.Helper
}

// Loader orchestrates a single container load: decode, seed the
// dependency graph from every row, topo-sort, and materialize objects in
// that order (spec.md §4.G).
type Loader struct {
	cache    ContainerResolver
	resolver *Resolver
	codecs   ObjectCodecRegistry
	logger   *log.Helper
	opts     LoaderOptions
}

// NewLoader returns a Loader backed by cache. cache is also the
// ContainerResolver every Resolver.AddObjectDependencies call consults to
// cross container boundaries, so it must already contain (or be able to
// load) every container the graph under construction can reference.
func NewLoader(cache ContainerResolver, opts LoaderOptions) *Loader {
	if opts.MaxGraphNodes <= 0 {
		opts.MaxGraphNodes = DefaultMaxGraphNodes
	}
	if opts.Codecs == nil {
		opts.Codecs = DefaultObjectCodecRegistry{}
	}
	l := &Loader{
		cache:  cache,
		codecs: opts.Codecs,
		logger: opts.Logger,
		opts:   opts,
	}
	l.resolver = NewResolver(cache, WithResolverLogger(opts.Logger))
	return l
}

// LoadFile loads the container at path under name, memory-mapping it the
// way DecodeContainerFile does. If name is already cached, the cached
// Container is returned unchanged (spec.md §4.G step 1).
func (l *Loader) LoadFile(path, name string, opts ...ContainerOption) (*Container, error) {
	return l.load(name, func() (*Container, error) {
		return DecodeContainerFile(path, name, l.decodeOpts(opts)...)
	})
}

// Load loads a container already held in memory, under name.
func (l *Loader) Load(data []byte, name string, opts ...ContainerOption) (*Container, error) {
	return l.load(name, func() (*Container, error) {
		return DecodeContainer(data, name, l.decodeOpts(opts)...)
	})
}

func (l *Loader) decodeOpts(extra []ContainerOption) []ContainerOption {
	base := []ContainerOption{WithObjectCodecs(l.codecs)}
	if l.logger != nil {
		base = append(base, WithLogger(l.logger))
	}
	return append(base, extra...)
}

func (l *Loader) load(name string, decode func() (*Container, error)) (*Container, error) {
	if cached := l.cache.Resolve(name); cached != nil {
		return cached, nil
	}

	root, err := decode()
	if err != nil {
		return nil, err
	}
	l.cache.Add(root)

	graph := NewDependencyGraph()
	for i := range root.Exports() {
		if err := l.resolver.AddObjectDependencies(graph, ObjectNode(name, FromExport(i))); err != nil {
			return nil, err
		}
	}
	for i := range root.Imports() {
		if err := l.resolver.AddObjectDependencies(graph, ObjectNode(name, FromImport(i))); err != nil {
			return nil, err
		}
	}

	if graph.NodeCount() > l.opts.MaxGraphNodes {
		return nil, fmt.Errorf("upkcore: dependency graph for %q exceeded %d nodes", name, l.opts.MaxGraphNodes)
	}

	order := graph.TopoSort()
	for _, node := range order {
		if node.IsNativeClass() {
			continue
		}
		owner := l.cache.Resolve(node.Container)
		if owner == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedContainer, node.Container)
		}
		if _, err := owner.CreateObject(node.Index); err != nil {
			return nil, err
		}
	}

	return root, nil
}
