// Package ring implements the consistent hash ring with virtual nodes used to
// locate the primary and replica shards owning a URN (spec.md §3/§4.B). The
// token layout — a sorted slice searched with sort.Search plus a reverse
// shard->tokens index, one exclusive lock guarding mutation — follows the
// ketama-style ring in other_examples' wudi-gateway consistenthash.go,
// generalized from net/http backends to shard ids.
package ring

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is the default vnode count per shard (spec.md §3).
const DefaultVirtualNodes = 150

// Empty is the signal returned by ShardForHash when the ring has no shards.
// It is not an error: callers translate it into "no shards available".
const Empty = ""

type tokenEntry struct {
	token   uint64
	shardID string
}

// ConsistentHashRing maps 64-bit hash values to shard ids via virtual nodes.
type ConsistentHashRing struct {
	mu      sync.RWMutex
	tokens  []tokenEntry        // sorted ascending by token
	byShard map[string][]uint64 // shard id -> its tokens, unsorted
}

// New returns an empty ring.
func New() *ConsistentHashRing {
	return &ConsistentHashRing{byShard: make(map[string][]uint64)}
}

// AddShard inserts virtualNodes tokens for shardID, computed by hashing
// "{shardID}#{i}". If the shard already exists it is removed first so the
// operation is idempotent under re-registration. Readers observe either the
// full pre- or full post-state: the rebuild happens under the exclusive
// lock and swaps the whole token slice atomically.
func (r *ConsistentHashRing) AddShard(shardID string, virtualNodes int) {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeShardLocked(shardID)

	tokens := make([]uint64, virtualNodes)
	for i := 0; i < virtualNodes; i++ {
		tokens[i] = xxhash.Sum64String(fmt.Sprintf("%s#%d", shardID, i))
	}
	r.byShard[shardID] = tokens

	r.rebuildLocked()
}

// RemoveShard deletes every token belonging to shardID. A missing shard is a
// no-op.
func (r *ConsistentHashRing) RemoveShard(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byShard[shardID]; !ok {
		return
	}
	r.removeShardLocked(shardID)
	r.rebuildLocked()
}

func (r *ConsistentHashRing) removeShardLocked(shardID string) {
	delete(r.byShard, shardID)
}

func (r *ConsistentHashRing) rebuildLocked() {
	tokens := make([]tokenEntry, 0, len(r.tokens))
	for shardID, shardTokens := range r.byShard {
		for _, t := range shardTokens {
			tokens = append(tokens, tokenEntry{token: t, shardID: shardID})
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].token < tokens[j].token })
	r.tokens = tokens
}

// ShardForHash returns the shard owning the first token >= h, wrapping to the
// smallest token when none exists. Returns Empty when the ring has no shards.
func (r *ConsistentHashRing) ShardForHash(h uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tokens) == 0 {
		return Empty
	}

	idx := sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].token >= h })
	if idx == len(r.tokens) {
		idx = 0
	}
	return r.tokens[idx].shardID
}

// Successors walks the ring clockwise from the first token >= h, collecting
// distinct shard ids until count are gathered or the ring has been fully
// traversed. If count exceeds the number of distinct shards, all distinct
// shards are returned.
func (r *ConsistentHashRing) Successors(h uint64, count int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tokens) == 0 || count <= 0 {
		return nil
	}

	start := sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].token >= h })

	seen := make(map[string]bool)
	result := make([]string, 0, count)
	for i := 0; i < len(r.tokens) && len(result) < count; i++ {
		entry := r.tokens[(start+i)%len(r.tokens)]
		if seen[entry.shardID] {
			continue
		}
		seen[entry.shardID] = true
		result = append(result, entry.shardID)
	}
	return result
}

// ShardRange returns the (min, max) token across shardID's virtual nodes.
// This is a conservative bound; it does not imply a contiguous arc.
func (r *ConsistentHashRing) ShardRange(shardID string) (min, max uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens, exists := r.byShard[shardID]
	if !exists || len(tokens) == 0 {
		return 0, 0, false
	}

	min, max = tokens[0], tokens[0]
	for _, t := range tokens[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return min, max, true
}

// BalanceFactor returns the standard deviation of virtual-node counts per
// shard, expressed as a percentage of the mean. A well-balanced ring stays
// under 5%.
func (r *ConsistentHashRing) BalanceFactor() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.byShard)
	if n == 0 {
		return 0
	}

	counts := make([]float64, 0, n)
	var sum float64
	for _, tokens := range r.byShard {
		c := float64(len(tokens))
		counts = append(counts, c)
		sum += c
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	return (stddev / mean) * 100
}

// ShardCount returns the number of distinct shards registered.
func (r *ConsistentHashRing) ShardCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byShard)
}
