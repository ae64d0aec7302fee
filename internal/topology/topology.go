// Package topology maintains the authoritative shard_id -> ShardInfo map
// (spec.md §3/§4.C): endpoints, datacenter/rack placement, health and
// capabilities. The ring answers "which token owns this key"; topology
// answers "where does that shard actually live and is it usable right now" —
// kept as two structures per spec.md §9 so resharding cadence and health-flap
// cadence don't entangle.
package topology

import (
	"sync"

	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// Capability is one of the operations a shard may be used for.
type Capability string

const (
	CapRead      Capability = "read"
	CapWrite     Capability = "write"
	CapReplicate Capability = "replicate"
	CapAdmin     Capability = "admin"
)

// ShardInfo is the full record tracked per shard.
type ShardInfo struct {
	ShardID           string
	PrimaryEndpoint   string
	ReplicaEndpoints  []string
	Datacenter        string
	Rack              string
	TokenRangeStart   uint64
	TokenRangeEnd     uint64
	IsHealthy         bool
	CertificateSerial string
	Capabilities      []Capability
}

// HasCapability reports whether cap is present.
func (s ShardInfo) HasCapability(cap Capability) bool {
	for _, c := range s.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Usable reports whether the shard may serve the given capability: healthy
// AND capable, per spec.md §3.
func (s ShardInfo) Usable(cap Capability) bool {
	return s.IsHealthy && s.HasCapability(cap)
}

// Store is the pluggable external metadata backing for Refresh/Save. The
// core does not mandate etcd, a static file, or gossip — spec.md §9 leaves
// the binding to the deployer; see DESIGN.md for the reference YAMLStore.
type Store interface {
	Load() (map[string]ShardInfo, error)
	SaveAll(map[string]ShardInfo) error
}

// ShardTopology is the in-memory, mutex-guarded authoritative map.
type ShardTopology struct {
	mu     sync.RWMutex
	shards map[string]ShardInfo
	store  Store
}

// New returns an empty topology, optionally backed by a Store.
func New(store Store) *ShardTopology {
	return &ShardTopology{shards: make(map[string]ShardInfo), store: store}
}

func (t *ShardTopology) Add(info ShardInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shards[info.ShardID] = info
}

func (t *ShardTopology) Remove(shardID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.shards, shardID)
}

func (t *ShardTopology) Get(shardID string) (ShardInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.shards[shardID]
	if !ok {
		return ShardInfo{}, shardcoreerr.New(shardcoreerr.KindTopology, shardcoreerr.ReasonTopologyMiss, shardID)
	}
	return info, nil
}

func (t *ShardTopology) GetAll() []ShardInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ShardInfo, 0, len(t.shards))
	for _, info := range t.shards {
		out = append(out, info)
	}
	return out
}

// GetHealthy filters GetAll to IsHealthy shards; always a subset of GetAll.
func (t *ShardTopology) GetHealthy() []ShardInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ShardInfo, 0, len(t.shards))
	for _, info := range t.shards {
		if info.IsHealthy {
			out = append(out, info)
		}
	}
	return out
}

func (t *ShardTopology) UpdateHealth(shardID string, healthy bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.shards[shardID]
	if !ok {
		return shardcoreerr.New(shardcoreerr.KindTopology, shardcoreerr.ReasonTopologyMiss, shardID)
	}
	info.IsHealthy = healthy
	t.shards[shardID] = info
	return nil
}

// Refresh reloads the full map from the backing Store, replacing the
// in-memory view under the exclusive lock so no resolve observes a torn
// topology.
func (t *ShardTopology) Refresh() error {
	if t.store == nil {
		return nil
	}
	loaded, err := t.store.Load()
	if err != nil {
		return shardcoreerr.Wrap(err, shardcoreerr.KindTopology, shardcoreerr.ReasonTopologyMiss, "refresh")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.shards = loaded
	return nil
}

// Save persists the current view to the backing Store.
func (t *ShardTopology) Save() error {
	if t.store == nil {
		return nil
	}
	t.mu.RLock()
	snapshot := make(map[string]ShardInfo, len(t.shards))
	for k, v := range t.shards {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	return t.store.SaveAll(snapshot)
}
