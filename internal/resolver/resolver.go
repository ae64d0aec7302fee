// Package resolver implements the URN resolver of spec.md §4.H: composing
// the URN, the consistent-hash ring and the shard topology into a
// location-transparent lookup.
package resolver

import (
	"github.com/themis-db/shardcore/internal/ring"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/urn"
)

// DefaultReplicaCount matches spec.md §4.H's resolve_replicas default.
const DefaultReplicaCount = 2

// URNResolver composes a ring and a topology into shard lookups.
type URNResolver struct {
	ring         *ring.ConsistentHashRing
	topology     *topology.ShardTopology
	localShardID string
}

// New builds a resolver bound to a ring, a topology, and the shard id of
// the local process (used by IsLocal).
func New(r *ring.ConsistentHashRing, t *topology.ShardTopology, localShardID string) *URNResolver {
	return &URNResolver{ring: r, topology: t, localShardID: localShardID}
}

// ResolvePrimary resolves u to the ShardInfo owning its hash.
func (res *URNResolver) ResolvePrimary(u urn.URN) (topology.ShardInfo, error) {
	shardID := res.ring.ShardForHash(u.Hash())
	if shardID == ring.Empty {
		return topology.ShardInfo{}, shardcoreerr.New(shardcoreerr.KindRing, shardcoreerr.ReasonRingEmpty, "")
	}
	return res.topology.Get(shardID)
}

// ResolveReplicas returns at most replicaCount+1 distinct, healthy shards:
// the primary first when it is healthy, then healthy successors on the ring
// (spec.md §4.H / §8 invariant 9). An unhealthy primary is left out.
func (res *URNResolver) ResolveReplicas(u urn.URN, replicaCount int) ([]topology.ShardInfo, error) {
	primary, err := res.ResolvePrimary(u)
	if err != nil {
		return nil, err
	}

	out := []topology.ShardInfo{}
	if primary.IsHealthy {
		out = append(out, primary)
	}
	seen := map[string]bool{primary.ShardID: true}

	candidates := res.ring.Successors(u.Hash(), replicaCount+1+res.ring.ShardCount())
	for _, shardID := range candidates {
		if len(out) > replicaCount {
			break
		}
		if seen[shardID] {
			continue
		}
		info, err := res.topology.Get(shardID)
		if err != nil || !info.IsHealthy {
			continue
		}
		seen[shardID] = true
		out = append(out, info)
	}
	return out, nil
}

// IsLocal reports whether u's primary shard is this process.
func (res *URNResolver) IsLocal(u urn.URN) bool {
	shardID := res.ring.ShardForHash(u.Hash())
	return shardID != ring.Empty && shardID == res.localShardID
}

// LocalShardID returns the shard id of this process, as passed to New.
func (res *URNResolver) LocalShardID() string {
	return res.localShardID
}

// GetShardID returns the primary shard id for u.
func (res *URNResolver) GetShardID(u urn.URN) string {
	return res.ring.ShardForHash(u.Hash())
}

// GetAllShards delegates to the topology.
func (res *URNResolver) GetAllShards() []topology.ShardInfo {
	return res.topology.GetAll()
}

// GetHealthyShards delegates to the topology.
func (res *URNResolver) GetHealthyShards() []topology.ShardInfo {
	return res.topology.GetHealthy()
}

// RefreshTopology reloads the topology from its backing store.
func (res *URNResolver) RefreshTopology() error {
	return res.topology.Refresh()
}
