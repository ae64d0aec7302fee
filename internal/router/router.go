package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/themis-db/shardcore/internal/executor"
	"github.com/themis-db/shardcore/internal/logging"
	"github.com/themis-db/shardcore/internal/metrics"
	"github.com/themis-db/shardcore/internal/resolver"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/urn"
)

var log = logging.MustGetLogger("router")

// Config bounds the router's scatter-gather behavior (spec.md §4.J/§5).
type Config struct {
	MaxConcurrentShards int
	ScatterTimeoutMs    int
	ReplicaCount        int
}

// DefaultConfig matches the implied defaults of spec.md §4.J.
func DefaultConfig() Config {
	return Config{MaxConcurrentShards: 8, ScatterTimeoutMs: 5_000, ReplicaCount: resolver.DefaultReplicaCount}
}

// ShardRouter dispatches get/put/del and query operations across shards
// (spec.md §4.J).
type ShardRouter struct {
	cfg       Config
	resolver  *resolver.URNResolver
	executor  *executor.RemoteExecutor
	localExec LocalExecutor

	total, local, remote, scatter, errors uint64
}

// New builds a ShardRouter. localExec may be nil if this process never
// serves a local shard.
func New(cfg Config, res *resolver.URNResolver, exec *executor.RemoteExecutor, localExec LocalExecutor) *ShardRouter {
	return &ShardRouter{cfg: cfg, resolver: res, executor: exec, localExec: localExec}
}

// Get resolves u's primary and returns its value, locally or remotely.
func (r *ShardRouter) Get(ctx context.Context, u urn.URN) (interface{}, bool, error) {
	atomic.AddUint64(&r.total, 1)
	path := "/api/v1/data/" + u.String()

	primary, err := r.resolver.ResolvePrimary(u)
	if err != nil {
		r.countError()
		return nil, false, err
	}

	if r.resolver.IsLocal(u) && r.localExec != nil {
		atomic.AddUint64(&r.local, 1)
		metrics.RouterDispatchTotal.WithLabelValues("local").Inc()
		data, err := r.localExec(ctx, "GET", path, nil)
		if err != nil {
			r.countError()
			return nil, false, shardcoreerr.Wrap(err, shardcoreerr.KindRouting, shardcoreerr.ReasonLocalHandlerMissing, primary.ShardID)
		}
		return data, true, nil
	}

	atomic.AddUint64(&r.remote, 1)
	metrics.RouterDispatchTotal.WithLabelValues("remote").Inc()
	result := r.executor.Get(ctx, primary, path)
	if !result.Success {
		r.countError()
		return nil, false, shardcoreerr.New(shardcoreerr.KindRouting, shardcoreerr.ReasonPartialFailure, result.ErrorMsg)
	}
	return result.Data, true, nil
}

// Put resolves u's primary and writes data, locally or remotely.
func (r *ShardRouter) Put(ctx context.Context, u urn.URN, data interface{}) (bool, error) {
	atomic.AddUint64(&r.total, 1)
	path := "/api/v1/data/" + u.String()

	primary, err := r.resolver.ResolvePrimary(u)
	if err != nil {
		r.countError()
		return false, err
	}

	if r.resolver.IsLocal(u) && r.localExec != nil {
		atomic.AddUint64(&r.local, 1)
		metrics.RouterDispatchTotal.WithLabelValues("local").Inc()
		if _, err := r.localExec(ctx, "PUT", path, data); err != nil {
			r.countError()
			return false, shardcoreerr.Wrap(err, shardcoreerr.KindRouting, shardcoreerr.ReasonLocalHandlerMissing, primary.ShardID)
		}
		return true, nil
	}

	atomic.AddUint64(&r.remote, 1)
	metrics.RouterDispatchTotal.WithLabelValues("remote").Inc()
	result := r.executor.Put(ctx, primary, path, data)
	if !result.Success {
		r.countError()
		return false, shardcoreerr.New(shardcoreerr.KindRouting, shardcoreerr.ReasonPartialFailure, result.ErrorMsg)
	}
	return true, nil
}

// Del resolves u's primary and deletes it, locally or remotely.
func (r *ShardRouter) Del(ctx context.Context, u urn.URN) (bool, error) {
	atomic.AddUint64(&r.total, 1)
	path := "/api/v1/data/" + u.String()

	primary, err := r.resolver.ResolvePrimary(u)
	if err != nil {
		r.countError()
		return false, err
	}

	if r.resolver.IsLocal(u) && r.localExec != nil {
		atomic.AddUint64(&r.local, 1)
		metrics.RouterDispatchTotal.WithLabelValues("local").Inc()
		if _, err := r.localExec(ctx, "DELETE", path, nil); err != nil {
			r.countError()
			return false, shardcoreerr.Wrap(err, shardcoreerr.KindRouting, shardcoreerr.ReasonLocalHandlerMissing, primary.ShardID)
		}
		return true, nil
	}

	atomic.AddUint64(&r.remote, 1)
	metrics.RouterDispatchTotal.WithLabelValues("remote").Inc()
	result := r.executor.Delete(ctx, primary, path)
	if !result.Success {
		r.countError()
		return false, shardcoreerr.New(shardcoreerr.KindRouting, shardcoreerr.ReasonPartialFailure, result.ErrorMsg)
	}
	return true, nil
}

func (r *ShardRouter) countError() {
	atomic.AddUint64(&r.errors, 1)
	metrics.RouterErrorsTotal.Inc()
}

// GetStatistics returns a snapshot of the router's counters (spec.md §4.J).
func (r *ShardRouter) GetStatistics() Statistics {
	return Statistics{
		Total:         atomic.LoadUint64(&r.total),
		Local:         atomic.LoadUint64(&r.local),
		Remote:        atomic.LoadUint64(&r.remote),
		ScatterGather: atomic.LoadUint64(&r.scatter),
		Errors:        atomic.LoadUint64(&r.errors),
	}
}

// ExecuteQuery classifies query and dispatches per spec.md §4.J.
func (r *ShardRouter) ExecuteQuery(ctx context.Context, query string) (MergedResult, error) {
	atomic.AddUint64(&r.total, 1)
	strategy, arg := analyzeQuery(query)

	switch strategy {
	case SingleShard:
		return r.executeSingleShard(ctx, arg, query)
	case CrossShardJoin:
		// Phase-one scatter only; a real two-phase lookup join across the
		// matched tables is an acknowledged gap (spec.md §9) until a
		// cross-shard join planner exists.
		results := r.scatterGather(ctx, query)
		return MergeResults(results), nil
	case NamespaceLocal:
		// No namespace->shard map exists yet, so this degrades to
		// scatter-gather (spec.md §9 open question), scoped to every
		// healthy shard rather than only those holding the namespace.
		results := r.scatterGather(ctx, query)
		return MergeResults(results), nil
	default:
		results := r.scatterGather(ctx, query)
		return MergeResults(results), nil
	}
}

func (r *ShardRouter) executeSingleShard(ctx context.Context, urnLiteral, query string) (MergedResult, error) {
	u, err := urn.Parse(urnLiteral)
	if err != nil {
		r.countError()
		return MergedResult{}, err
	}
	primary, err := r.resolver.ResolvePrimary(u)
	if err != nil {
		r.countError()
		return MergedResult{}, err
	}

	result := r.dispatchQuery(ctx, primary, query)
	return MergeResults([]ShardResult{result}), nil
}

// ScatterGather dispatches query to every healthy shard and merges the
// responses, per spec.md §4.J.
func (r *ShardRouter) ScatterGather(ctx context.Context, query string) (MergedResult, error) {
	return MergeResults(r.scatterGather(ctx, query)), nil
}

// scatterGather fans query out to every healthy shard concurrently, bounded
// by cfg.MaxConcurrentShards with an aggregate cfg.ScatterTimeoutMs timeout
// (spec.md §4.J / §5). The local shard, if present among the healthy set, is
// invoked via the in-process LocalExecutor rather than a loopback HTTP call.
func (r *ShardRouter) scatterGather(ctx context.Context, query string) []ShardResult {
	atomic.AddUint64(&r.scatter, 1)
	metrics.RouterDispatchTotal.WithLabelValues("scatter_gather").Inc()

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.ScatterTimeoutMs)*time.Millisecond)
	defer cancel()

	healthy := r.resolver.GetHealthyShards()
	results := make([]ShardResult, len(healthy))

	sem := make(chan struct{}, maxInt(1, r.cfg.MaxConcurrentShards))
	var wg sync.WaitGroup
	for i, shard := range healthy {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, shard topology.ShardInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.dispatchQuery(timeoutCtx, shard, query)
		}(i, shard)
	}
	wg.Wait()

	for _, res := range results {
		if !res.Success {
			atomic.AddUint64(&r.errors, 1)
			metrics.RouterErrorsTotal.Inc()
			log.Warnf("scatter-gather: shard %s failed: %s", res.ShardID, res.ErrorMsg)
		}
	}
	return results
}

// dispatchQuery runs query against one shard, locally if it is this
// process's own shard and a LocalExecutor is registered, remotely otherwise.
func (r *ShardRouter) dispatchQuery(ctx context.Context, shard topology.ShardInfo, query string) ShardResult {
	if r.localExec != nil && shard.ShardID == r.resolver.LocalShardID() {
		atomic.AddUint64(&r.local, 1)
		metrics.RouterDispatchTotal.WithLabelValues("local").Inc()
		data, err := r.localExec(ctx, "POST", "/api/v1/query", map[string]string{"query": query})
		if err != nil {
			return ShardResult{ShardID: shard.ShardID, Success: false, ErrorMsg: err.Error()}
		}
		return ShardResult{ShardID: shard.ShardID, Success: true, Data: data}
	}

	atomic.AddUint64(&r.remote, 1)
	metrics.RouterDispatchTotal.WithLabelValues("remote").Inc()
	result := r.executor.ExecuteQuery(ctx, shard, query)
	return ShardResult{
		ShardID:         result.ShardID,
		Data:            result.Data,
		Success:         result.Success,
		ErrorMsg:        result.ErrorMsg,
		ExecutionTimeMs: result.ExecutionTimeMs,
		HTTPStatus:      result.HTTPStatus,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
