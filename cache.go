// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import "sync"

// ContainerCache is the process-wide associative store mapping container
// name to Container, the authority the Resolver consults to cross
// container boundaries (spec.md §4.D). It is passed explicitly to the
// Loader and Exporter rather than held as a package-level singleton
// (spec.md §9 "Global cache").
//
// Readers may overlap freely; Add serializes against both Add and Resolve
// via a single RWMutex, satisfying the single-writer/multiple-reader
// discipline spec.md §5 requires.
type ContainerCache struct {
	mu         sync.RWMutex
	containers map[string]*Container
}

// NewContainerCache returns an empty cache.
func NewContainerCache() *ContainerCache {
	return &ContainerCache{containers: make(map[string]*Container)}
}

// IsCached reports whether name has already been loaded.
func (c *ContainerCache) IsCached(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.containers[name]
	return ok
}

// Get returns the cached Container for name, or nil if absent.
func (c *ContainerCache) Get(name string) *Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containers[name]
}

// Add publishes container under its own Name(). Containers are only
// published after a successful decode and before materialization, so no
// cache rollback is required on a later failure (spec.md §5).
func (c *ContainerCache) Add(container *Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.containers[container.Name()] = container
}

// Evict removes name from the cache, for callers that cancel a
// partially-materialized load (spec.md §5 "Cancellation and timeouts").
func (c *ContainerCache) Evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.containers, name)
}

// Resolve implements the resolver interface §4.D/§6 exposes to the
// Resolver and Loader: it returns the cached Container for name, or nil if
// it has not been loaded.
func (c *ContainerCache) Resolve(name string) *Container {
	return c.Get(name)
}
