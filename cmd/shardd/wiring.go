package main

import (
	"fmt"

	"github.com/themis-db/shardcore/internal/config"
	"github.com/themis-db/shardcore/internal/executor"
	"github.com/themis-db/shardcore/internal/hsm"
	"github.com/themis-db/shardcore/internal/resolver"
	"github.com/themis-db/shardcore/internal/ring"
	"github.com/themis-db/shardcore/internal/router"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
	"github.com/themis-db/shardcore/internal/signing"
	"github.com/themis-db/shardcore/internal/topology"
	"github.com/themis-db/shardcore/internal/transport"
)

// deployment bundles every wired component for one shardd process.
type deployment struct {
	cfg      *config.Config
	ring     *ring.ConsistentHashRing
	topology *topology.ShardTopology
	resolver *resolver.URNResolver
	hsmCore  *hsm.SigningCore
	signer   *signing.Signer
	client   *transport.MTLSClient
	executor *executor.RemoteExecutor
	router   *router.ShardRouter
}

// build loads configFile and wires every component the way Config.Load's
// sections describe. It does not start a listener.
func build() (*deployment, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, shardcoreerr.Wrapf(err, "load config")
	}

	topo := topology.New(&topology.YAMLStore{Path: cfg.TopologyFile})
	if err := topo.Refresh(); err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}

	r := ring.New()
	for _, shard := range topo.GetAll() {
		r.AddShard(shard.ShardID, cfg.VirtualNodes)
	}

	res := resolver.New(r, topo, cfg.ShardID)

	core := hsm.NewSigningCore(cfg.HSM.ToHSMConfig())
	core.Initialize()
	log.Infof("hsm signing core ready: %s", core.TokenInfo())

	signer := signing.NewSigner(cfg.ShardID, core)

	client, err := transport.NewMTLSClient(cfg.MTLS.ToTransportConfig())
	if err != nil {
		return nil, shardcoreerr.Wrapf(err, "build mtls client")
	}

	exec := executor.New(client, signer, cfg.SigningOn)
	rtr := router.New(cfg.Router.ToRouterConfig(), res, exec, nil)

	return &deployment{
		cfg: cfg, ring: r, topology: topo, resolver: res,
		hsmCore: core, signer: signer, client: client, executor: exec, router: rtr,
	}, nil
}
