package router_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/themis-db/shardcore/internal/executor"
	"github.com/themis-db/shardcore/internal/resolver"
	"github.com/themis-db/shardcore/internal/ring"
	"github.com/themis-db/shardcore/internal/router"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/transport"
)

// fakeClient dispatches /api/v1/query responses by shard, keyed off the URL
// path's host component, so the test can make one shard fail and the rest
// succeed.
type fakeClient struct {
	byHost map[string]transport.Response
}

func (c *fakeClient) Get(ctx context.Context, url string) transport.Response    { return c.byHost[hostOf(url)] }
func (c *fakeClient) Put(ctx context.Context, url string, _ interface{}) transport.Response {
	return c.byHost[hostOf(url)]
}
func (c *fakeClient) Delete(ctx context.Context, url string) transport.Response { return c.byHost[hostOf(url)] }
func (c *fakeClient) Post(ctx context.Context, url string, _ interface{}) transport.Response {
	return c.byHost[hostOf(url)]
}

func hostOf(url string) string {
	// url is "https://<host>/api/v1/query"; host has no further slashes.
	rest := url[len("https://"):]
	for i, ch := range rest {
		if ch == '/' {
			return rest[:i]
		}
	}
	return rest
}

func buildRouter(t *testing.T, client *fakeClient, shardCount int) (*router.ShardRouter, *topology.ShardTopology) {
	t.Helper()

	r := ring.New()
	topo := topology.New(nil)
	for i := 0; i < shardCount; i++ {
		id := fmt.Sprintf("shard_%03d", i)
		r.AddShard(id, ring.DefaultVirtualNodes)
		topo.Add(topology.ShardInfo{
			ShardID:         id,
			PrimaryEndpoint: fmt.Sprintf("shard-%d.themis.local", i),
			IsHealthy:       true,
			Capabilities:    []topology.Capability{topology.CapRead, topology.CapWrite},
		})
	}

	res := resolver.New(r, topo, "shard_000")
	exec := executor.New(client, nil, false)
	return router.New(router.DefaultConfig(), res, exec, nil), topo
}

func TestScatterGatherMergesEmptyTopologyToZeroResult(t *testing.T) {
	client := &fakeClient{byHost: map[string]transport.Response{}}
	rtr, _ := buildRouter(t, client, 0)

	merged, err := rtr.ScatterGather(context.Background(), "SELECT * FROM users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ShardCount != 0 || merged.SuccessCount != 0 || merged.ErrorCount != 0 {
		t.Fatalf("expected all-zero merge, got %+v", merged)
	}
	if merged.Results == nil || merged.Errors == nil {
		t.Fatalf("expected non-nil empty slices, got %+v", merged)
	}
}

func TestScatterGatherPartialFailureAcrossThreeShards(t *testing.T) {
	client := &fakeClient{byHost: map[string]transport.Response{
		"shard-0.themis.local": {Success: true, StatusCode: 200, Body: []byte(`{"results":[{"id":1}]}`)},
		"shard-1.themis.local": {Success: false, StatusCode: 500, StatusMessage: "500 Internal Server Error"},
		"shard-2.themis.local": {Success: true, StatusCode: 200, Body: []byte(`{"results":[{"id":2}]}`)},
	}}
	rtr, _ := buildRouter(t, client, 3)

	merged, err := rtr.ScatterGather(context.Background(), "SELECT * FROM users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ShardCount != 3 {
		t.Fatalf("expected shard_count=3, got %d", merged.ShardCount)
	}
	if merged.SuccessCount != 2 {
		t.Fatalf("expected success_count=2, got %d", merged.SuccessCount)
	}
	if merged.ErrorCount != 1 || len(merged.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %+v", merged.Errors)
	}
	if len(merged.Results) != 2 {
		t.Fatalf("expected 2 merged results, got %d: %+v", len(merged.Results), merged.Results)
	}

	stats := rtr.GetStatistics()
	if stats.ScatterGather != 1 {
		t.Fatalf("expected one scatter-gather dispatch recorded, got %+v", stats)
	}
	if stats.Errors != 1 {
		t.Fatalf("expected one error recorded, got %+v", stats)
	}
}

func TestExecuteQueryClassifiesSingleShardURN(t *testing.T) {
	urnLiteral := "urn:themis:relational:tenant_a:orders:550e8400-e29b-41d4-a716-446655440000"
	client := &fakeClient{byHost: map[string]transport.Response{}}
	rtr, _ := buildRouter(t, client, 2)

	// No host in byHost means a zero-value transport.Response — Success is
	// false, so this exercises the single-shard path end to end without
	// asserting on which of the two shards happened to win the hash.
	merged, err := rtr.ExecuteQuery(context.Background(), urnLiteral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ShardCount != 1 {
		t.Fatalf("expected single-shard dispatch, got shard_count=%d", merged.ShardCount)
	}
}

func TestExecuteQueryFallsBackToScatterGatherForPlainQueries(t *testing.T) {
	client := &fakeClient{byHost: map[string]transport.Response{
		"shard-0.themis.local": {Success: true, StatusCode: 200, Body: []byte(`{"results":[]}`)},
		"shard-1.themis.local": {Success: true, StatusCode: 200, Body: []byte(`{"results":[]}`)},
	}}
	rtr, _ := buildRouter(t, client, 2)

	merged, err := rtr.ExecuteQuery(context.Background(), "SELECT * FROM users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ShardCount != 2 {
		t.Fatalf("expected scatter-gather across both shards, got shard_count=%d", merged.ShardCount)
	}
}
