package ring_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/themis-db/shardcore/internal/ring"
)

func TestEmptyRingReturnsEmpty(t *testing.T) {
	r := ring.New()
	if got := r.ShardForHash(42); got != ring.Empty {
		t.Fatalf("expected Empty, got %q", got)
	}
}

func TestDeterministicLookup(t *testing.T) {
	r := ring.New()
	r.AddShard("shard_001", 150)
	r.AddShard("shard_002", 150)

	h := uint64(123456789)
	first := r.ShardForHash(h)
	for i := 0; i < 100; i++ {
		if got := r.ShardForHash(h); got != first {
			t.Fatalf("lookup not deterministic: %q vs %q", got, first)
		}
	}
}

func TestDistributionAcrossTwoShards(t *testing.T) {
	r := ring.New()
	r.AddShard("shard_001", 150)
	r.AddShard("shard_002", 150)

	counts := map[string]int{}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		counts[r.ShardForHash(rng.Uint64())]++
	}

	for shard, c := range counts {
		if c < 4500 || c > 5500 {
			t.Fatalf("shard %s got %d keys, expected within [4500,5500]", shard, c)
		}
	}
}

func TestRemoveShardMigratesOnlyItsKeys(t *testing.T) {
	r := ring.New()
	shards := []string{"s0", "s1", "s2"}
	for _, s := range shards {
		r.AddShard(s, 150)
	}

	rng := rand.New(rand.NewSource(2))
	keys := make([]uint64, 5000)
	before := make([]string, len(keys))
	for i := range keys {
		keys[i] = rng.Uint64()
		before[i] = r.ShardForHash(keys[i])
	}

	r.RemoveShard("s1")

	for i, k := range keys {
		after := r.ShardForHash(k)
		if before[i] == "s1" {
			if after == "s1" {
				t.Fatalf("key previously on removed shard still maps there")
			}
		} else if after != before[i] {
			t.Fatalf("key on surviving shard %s migrated to %s", before[i], after)
		}
	}
}

func TestAddShardMigrationRatio(t *testing.T) {
	r := ring.New()
	for i := 0; i < 5; i++ {
		r.AddShard(fmt.Sprintf("shard_%d", i), 150)
	}

	rng := rand.New(rand.NewSource(3))
	keys := make([]uint64, 10000)
	before := make([]string, len(keys))
	for i := range keys {
		keys[i] = rng.Uint64()
		before[i] = r.ShardForHash(keys[i])
	}

	r.AddShard("shard_new", 150)

	migrated := 0
	newShardCount := 0
	for i, k := range keys {
		after := r.ShardForHash(k)
		if after != before[i] {
			migrated++
		}
		if after == "shard_new" {
			newShardCount++
		}
	}

	if migrated < 1000 || migrated > 2500 {
		t.Fatalf("migrated = %d, expected within [1000,2500]", migrated)
	}
	if newShardCount < 1167 || newShardCount > 2167 {
		t.Fatalf("shard_new got %d keys, expected within [1167,2167]", newShardCount)
	}
}

func TestSuccessorsDistinctAndBounded(t *testing.T) {
	r := ring.New()
	for i := 0; i < 4; i++ {
		r.AddShard(fmt.Sprintf("s%d", i), 150)
	}

	succ := r.Successors(999, 10)
	if len(succ) != 4 {
		t.Fatalf("count>distinct should return all distinct shards, got %v", succ)
	}
	seen := map[string]bool{}
	for _, s := range succ {
		if seen[s] {
			t.Fatalf("duplicate shard in successors: %v", succ)
		}
		seen[s] = true
	}
}

func TestCoefficientOfVariationUnderBound(t *testing.T) {
	for _, n := range []int{3, 5, 10, 20} {
		r := ring.New()
		for i := 0; i < n; i++ {
			r.AddShard(fmt.Sprintf("shard_%d", i), 150)
		}

		counts := make(map[string]int)
		rng := rand.New(rand.NewSource(int64(n)))
		for i := 0; i < 10000; i++ {
			counts[r.ShardForHash(rng.Uint64())]++
		}

		var sum, sumSq float64
		for _, c := range counts {
			sum += float64(c)
			sumSq += float64(c) * float64(c)
		}
		mean := sum / float64(len(counts))
		variance := sumSq/float64(len(counts)) - mean*mean
		cv := sqrt(variance) / mean
		if cv >= 0.20 {
			t.Fatalf("n=%d: coefficient of variation %f >= 0.20", n, cv)
		}
	}
}

func sqrt(f float64) float64 {
	if f <= 0 {
		return 0
	}
	x := f
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

func TestRemovingLastShardEmptiesRing(t *testing.T) {
	r := ring.New()
	r.AddShard("only", 150)
	r.RemoveShard("only")
	if got := r.ShardForHash(1); got != ring.Empty {
		t.Fatalf("expected Empty after removing last shard, got %q", got)
	}
}
