// Package executor implements the remote executor of spec.md §4.I: it
// mirrors MTLSClient's verbs plus ExecuteQuery, wrapping the body of each
// PUT and POST in a signed envelope when signing is enabled and deriving the
// shard's HTTPS endpoint. GET and DELETE carry no body, so no envelope is
// sent with them.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/themis-db/shardcore/internal/shardcoreerr"
	"github.com/themis-db/shardcore/internal/signing"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/transport"
)

// mtlsClient is the slice of *transport.MTLSClient the executor needs.
type mtlsClient interface {
	Get(ctx context.Context, url string) transport.Response
	Post(ctx context.Context, url string, body interface{}) transport.Response
	Put(ctx context.Context, url string, body interface{}) transport.Response
	Delete(ctx context.Context, url string) transport.Response
}

// RemoteExecutor issues HTTP calls to other shards, optionally signing each
// request (spec.md §4.I).
type RemoteExecutor struct {
	client       mtlsClient
	signer       *signing.Signer
	signingOn    bool
}

// New builds a RemoteExecutor. Pass a nil signer (signingEnabled=false) to
// skip envelope signing entirely, e.g. for trusted intra-DC deployments.
func New(client mtlsClient, signer *signing.Signer, signingEnabled bool) *RemoteExecutor {
	return &RemoteExecutor{client: client, signer: signer, signingOn: signingEnabled && signer != nil}
}

// Endpoint derives the shard's base URL, prepending https:// only if the
// configured primary endpoint omits a scheme (spec.md §4.I).
func Endpoint(shard topology.ShardInfo) string {
	if strings.Contains(shard.PrimaryEndpoint, "://") {
		return shard.PrimaryEndpoint
	}
	return "https://" + shard.PrimaryEndpoint
}

// Result is the outcome of one remote call, timed around the outbound
// request per spec.md §4.I.
type Result struct {
	ShardID         string
	Data            interface{}
	Success         bool
	ErrorMsg        string
	ExecutionTimeMs int64
	HTTPStatus      int
}

func (e *RemoteExecutor) Get(ctx context.Context, shard topology.ShardInfo, path string) Result {
	return e.call(ctx, shard, "GET", path, nil)
}

func (e *RemoteExecutor) Put(ctx context.Context, shard topology.ShardInfo, path string, body interface{}) Result {
	return e.call(ctx, shard, "PUT", path, body)
}

func (e *RemoteExecutor) Delete(ctx context.Context, shard topology.ShardInfo, path string) Result {
	return e.call(ctx, shard, "DELETE", path, nil)
}

// ExecuteQuery POSTs {"query": queryString} to /api/v1/query, per spec.md §4.I.
func (e *RemoteExecutor) ExecuteQuery(ctx context.Context, shard topology.ShardInfo, queryString string) Result {
	return e.call(ctx, shard, "POST", "/api/v1/query", map[string]string{"query": queryString})
}

func (e *RemoteExecutor) call(ctx context.Context, shard topology.ShardInfo, method, path string, body interface{}) Result {
	start := time.Now()
	url := Endpoint(shard) + path

	if e.signingOn {
		envelope, err := e.signer.CreateSignedRequest(method, path, body)
		if err != nil {
			return Result{
				ShardID:         shard.ShardID,
				Success:         false,
				ErrorMsg:        err.Error(),
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			}
		}
		body = envelope
	}

	var resp transport.Response
	switch method {
	case "GET":
		resp = e.client.Get(ctx, url)
	case "PUT":
		resp = e.client.Put(ctx, url, body)
	case "DELETE":
		resp = e.client.Delete(ctx, url)
	default:
		resp = e.client.Post(ctx, url, body)
	}

	result := Result{
		ShardID:         shard.ShardID,
		Success:         resp.Success,
		HTTPStatus:      resp.StatusCode,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	if resp.Err != nil {
		result.ErrorMsg = resp.Err.Error()
		result.Success = false
		return result
	}
	if !resp.Success {
		result.ErrorMsg = resp.StatusMessage
		return result
	}

	var decoded interface{}
	if err := resp.DecodeBody(&decoded); err != nil {
		result.Success = false
		result.ErrorMsg = shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonArgumentsBad, "decode response").Error()
		return result
	}
	result.Data = decoded
	return result
}
