package executor_test

import (
	"context"
	"testing"

	"github.com/themis-db/shardcore/internal/executor"
	"github.com/themis-db/shardcore/internal/hsm"
	"github.com/themis-db/shardcore/internal/signing"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/transport"
)

type recordingClient struct {
	lastURL    string
	lastBody   interface{}
	lastMethod string
	response   transport.Response
}

func (c *recordingClient) Get(ctx context.Context, url string) transport.Response {
	c.lastURL, c.lastMethod = url, "GET"
	return c.response
}
func (c *recordingClient) Post(ctx context.Context, url string, body interface{}) transport.Response {
	c.lastURL, c.lastMethod, c.lastBody = url, "POST", body
	return c.response
}
func (c *recordingClient) Put(ctx context.Context, url string, body interface{}) transport.Response {
	c.lastURL, c.lastMethod, c.lastBody = url, "PUT", body
	return c.response
}
func (c *recordingClient) Delete(ctx context.Context, url string) transport.Response {
	c.lastURL, c.lastMethod = url, "DELETE"
	return c.response
}

func TestEndpointPrependsSchemeWhenAbsent(t *testing.T) {
	shard := topology.ShardInfo{PrimaryEndpoint: "shard-1.themis.local:8443"}
	if got := executor.Endpoint(shard); got != "https://shard-1.themis.local:8443" {
		t.Fatalf("Endpoint() = %q", got)
	}

	shard.PrimaryEndpoint = "http://shard-1.themis.local:8443"
	if got := executor.Endpoint(shard); got != "http://shard-1.themis.local:8443" {
		t.Fatalf("Endpoint() should keep an existing scheme, got %q", got)
	}
}

func TestExecuteQueryPostsToQueryEndpoint(t *testing.T) {
	client := &recordingClient{response: transport.Response{Success: true, StatusCode: 200, Body: []byte(`{"results":[]}`)}}
	exec := executor.New(client, nil, false)

	shard := topology.ShardInfo{ShardID: "shard_001", PrimaryEndpoint: "shard-1.themis.local:8443"}
	result := exec.ExecuteQuery(context.Background(), shard, "SELECT * FROM users")

	if client.lastMethod != "POST" {
		t.Fatalf("expected POST, got %s", client.lastMethod)
	}
	if client.lastURL != "https://shard-1.themis.local:8443/api/v1/query" {
		t.Fatalf("unexpected URL: %s", client.lastURL)
	}
	body, ok := client.lastBody.(map[string]string)
	if !ok || body["query"] != "SELECT * FROM users" {
		t.Fatalf("unexpected body: %#v", client.lastBody)
	}
	if !result.Success {
		t.Fatalf("expected Result.Success, got %+v", result)
	}
}

func TestCallWrapsBodyInSignedEnvelopeWhenSigningEnabled(t *testing.T) {
	client := &recordingClient{response: transport.Response{Success: true, StatusCode: 200, Body: []byte(`{}`)}}
	core := hsm.NewSigningCore(hsm.Config{LibraryPath: "/does/not/exist"})
	core.Initialize()
	signer := signing.NewSigner("shard_local", core)
	exec := executor.New(client, signer, true)

	shard := topology.ShardInfo{ShardID: "shard_remote", PrimaryEndpoint: "shard-remote.themis.local:8443"}
	exec.Put(context.Background(), shard, "/api/v1/data/x", map[string]int{"v": 1})

	envelope, ok := client.lastBody.(signing.SignedRequest)
	if !ok {
		t.Fatalf("expected body to be a signing.SignedRequest, got %#v", client.lastBody)
	}
	if envelope.ShardID != "shard_local" {
		t.Fatalf("envelope should carry the signer's shard id, got %q", envelope.ShardID)
	}
	if envelope.SignatureB64 == "" {
		t.Fatalf("expected a non-empty signature")
	}
}

func TestResultReportsHTTPFailureWithoutSuccess(t *testing.T) {
	client := &recordingClient{response: transport.Response{Success: false, StatusCode: 500, StatusMessage: "500 Internal Server Error"}}
	exec := executor.New(client, nil, false)

	shard := topology.ShardInfo{ShardID: "shard_001", PrimaryEndpoint: "shard-1.themis.local:8443"}
	result := exec.Get(context.Background(), shard, "/api/v1/data/x")

	if result.Success {
		t.Fatalf("expected failure result")
	}
	if result.HTTPStatus != 500 {
		t.Fatalf("expected HTTPStatus=500, got %d", result.HTTPStatus)
	}
}
