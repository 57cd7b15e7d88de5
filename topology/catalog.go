/*
 * Copyright (c) 2024, flowrt authors.
 */
package topology

import "github.com/flowmesh/flowrt/block"

// Factory constructs one catalog block from its JSON args (spec §6
// "path names an entry in the external block catalog"). The core never
// interprets path strings or args itself; it hands them to the caller's
// Catalog and treats the result as an opaque block.Block.
type Factory func(args map[string]any) (block.Block, error)

// Catalog maps a topology JSON block's "path" to the Factory that builds it.
// Building a catalog/plugin-registry implementation is explicitly out of
// scope (spec §9 "Global state... confine to its own module"); Catalog is
// the seam the core depends on instead.
type Catalog map[string]Factory
