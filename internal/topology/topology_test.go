package topology_test

import (
	"path/filepath"
	"testing"

	"github.com/themis-db/shardcore/internal/topology"
)

func sample(id string, healthy bool) topology.ShardInfo {
	return topology.ShardInfo{
		ShardID:         id,
		PrimaryEndpoint: "https://" + id + ":8443",
		Datacenter:      "dc1",
		TokenRangeStart: 0,
		TokenRangeEnd:   100,
		IsHealthy:       healthy,
		Capabilities:    []topology.Capability{topology.CapRead, topology.CapWrite},
	}
}

func TestGetHealthyIsSubsetOfGetAll(t *testing.T) {
	top := topology.New(nil)
	top.Add(sample("s1", true))
	top.Add(sample("s2", false))
	top.Add(sample("s3", true))

	all := top.GetAll()
	healthy := top.GetHealthy()

	if len(healthy) != 2 {
		t.Fatalf("expected 2 healthy shards, got %d", len(healthy))
	}

	allIDs := map[string]bool{}
	for _, s := range all {
		allIDs[s.ShardID] = true
	}
	for _, s := range healthy {
		if !allIDs[s.ShardID] {
			t.Fatalf("healthy shard %s not present in GetAll", s.ShardID)
		}
	}
}

func TestGetMissingReturnsTopologyMiss(t *testing.T) {
	top := topology.New(nil)
	if _, err := top.Get("nope"); err == nil {
		t.Fatalf("expected error for missing shard")
	}
}

func TestUpdateHealth(t *testing.T) {
	top := topology.New(nil)
	top.Add(sample("s1", false))

	if err := top.UpdateHealth("s1", true); err != nil {
		t.Fatalf("UpdateHealth: %v", err)
	}
	info, err := top.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !info.IsHealthy {
		t.Fatalf("expected shard to be healthy after update")
	}
}

func TestYAMLStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	store := &topology.YAMLStore{Path: path}

	top := topology.New(store)
	top.Add(sample("s1", true))
	top.Add(sample("s2", true))

	if err := top.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := topology.New(store)
	if err := reloaded.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(reloaded.GetAll()) != 2 {
		t.Fatalf("expected 2 shards after reload, got %d", len(reloaded.GetAll()))
	}
}

func TestUsableRequiresHealthAndCapability(t *testing.T) {
	info := sample("s1", true)
	if !info.Usable(topology.CapRead) {
		t.Fatalf("expected usable for read")
	}
	if info.Usable(topology.CapAdmin) {
		t.Fatalf("expected not usable for admin")
	}

	unhealthy := sample("s2", false)
	if unhealthy.Usable(topology.CapRead) {
		t.Fatalf("unhealthy shard must not be usable")
	}
}
