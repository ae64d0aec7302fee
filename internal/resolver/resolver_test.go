package resolver_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/themis-db/shardcore/internal/resolver"
	"github.com/themis-db/shardcore/internal/ring"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/urn"
)

func newTestURN() urn.URN {
	u, err := urn.Parse("urn:themis:relational:customers:users:550e8400-e29b-41d4-a716-446655440000")
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("URNResolver", func() {
	var (
		r   *ring.ConsistentHashRing
		tp  *topology.ShardTopology
		res *resolver.URNResolver
		u   urn.URN
	)

	BeforeEach(func() {
		r = ring.New()
		tp = topology.New(nil)
		u = newTestURN()

		for _, id := range []string{"shard_001", "shard_002", "shard_003"} {
			r.AddShard(id, 150)
			tp.Add(topology.ShardInfo{
				ShardID:      id,
				IsHealthy:    true,
				Capabilities: []topology.Capability{topology.CapRead, topology.CapWrite},
			})
		}
		res = resolver.New(r, tp, "shard_001")
	})

	It("resolves the same primary as the ring directly", func() {
		primary, err := res.ResolvePrimary(u)
		Expect(err).NotTo(HaveOccurred())
		Expect(primary.ShardID).To(Equal(r.ShardForHash(u.Hash())))
	})

	It("reports is_local correctly", func() {
		primaryID := r.ShardForHash(u.Hash())
		Expect(res.IsLocal(u)).To(Equal(primaryID == "shard_001"))
	})

	It("returns at most replicaCount+1 distinct healthy shards", func() {
		replicas, err := res.ResolveReplicas(u, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(replicas)).To(BeNumerically("<=", 3))

		seen := map[string]bool{}
		for _, info := range replicas {
			Expect(seen[info.ShardID]).To(BeFalse(), "duplicate shard in replica set")
			seen[info.ShardID] = true
			Expect(info.IsHealthy).To(BeTrue())
		}
	})

	It("skips unhealthy successors", func() {
		tp.UpdateHealth("shard_002", false)
		tp.UpdateHealth("shard_003", false)

		replicas, err := res.ResolveReplicas(u, 2)
		Expect(err).NotTo(HaveOccurred())
		for _, info := range replicas {
			Expect(info.IsHealthy).To(BeTrue())
		}
	})

	It("surfaces RingEmpty when the ring has no shards", func() {
		empty := resolver.New(ring.New(), topology.New(nil), "shard_001")
		_, err := empty.ResolvePrimary(u)
		Expect(err).To(HaveOccurred())
	})
})
