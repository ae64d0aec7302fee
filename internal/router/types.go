// Package router implements the shard router of spec.md §4.J: single-shard,
// scatter-gather and cross-shard dispatch, local-vs-remote decisions, result
// merging and pagination. The router never links a storage engine (spec.md
// §9): local execution is a pluggable callback.
package router

import "context"

// Strategy is the routing-strategy tagged variant of spec.md §3.
type Strategy string

const (
	SingleShard    Strategy = "single_shard"
	ScatterGather  Strategy = "scatter_gather"
	NamespaceLocal Strategy = "namespace_local"
	CrossShardJoin Strategy = "cross_shard_join"
)

// ShardResult is one shard's answer within a scatter-gather, per spec.md §3.
type ShardResult struct {
	ShardID         string
	Data            interface{}
	Success         bool
	ErrorMsg        string
	ExecutionTimeMs int64
	HTTPStatus      int
}

// MergedResult is the output of MergeResults, per spec.md §4.J / §8 invariant 10.
type MergedResult struct {
	Results      []interface{} `json:"results"`
	Errors       []ShardError  `json:"errors"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	ShardCount   int           `json:"shard_count"`
}

// ShardError records one shard's failure within a merge, never interleaved
// with successful data (spec.md §4.J).
type ShardError struct {
	ShardID string `json:"shard_id"`
	Error   string `json:"error"`
}

// Statistics are the router's operational counters (spec.md §4.J get_statistics).
type Statistics struct {
	Total         uint64 `json:"total"`
	Local         uint64 `json:"local"`
	Remote        uint64 `json:"remote"`
	ScatterGather uint64 `json:"scatter_gather"`
	Errors        uint64 `json:"errors"`
}

// LocalExecutor is the pluggable in-process execution callback (spec.md §9):
// the router hands it (method, path, body) and never assumes a storage
// engine behind it.
type LocalExecutor func(ctx context.Context, method, path string, body interface{}) (interface{}, error)
