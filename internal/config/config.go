// Package config loads shardd's YAML configuration via spf13/viper, the way
// the wider example corpus configures long-running servers: one file, env
// overrides layered on top, typed defaults applied before unmarshal.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/themis-db/shardcore/internal/hsm"
	"github.com/themis-db/shardcore/internal/router"
	"github.com/themis-db/shardcore/internal/transport"
)

// HSMConfig mirrors hsm.Config with yaml tags; ToHSMConfig converts it.
type HSMConfig struct {
	LibraryPath     string `mapstructure:"library_path"`
	SlotID          uint32 `mapstructure:"slot_id"`
	PIN             string `mapstructure:"pin"`
	TokenLabel      string `mapstructure:"token_label"`
	SignatureAlgo   string `mapstructure:"signature_algorithm"`
	KeyLabel        string `mapstructure:"key_label"`
	SessionPoolSize uint32 `mapstructure:"session_pool_size"`
	Verbose         bool   `mapstructure:"verbose"`
}

func (c HSMConfig) ToHSMConfig() hsm.Config {
	return hsm.Config{
		LibraryPath:     c.LibraryPath,
		SlotID:          c.SlotID,
		PIN:             c.PIN,
		TokenLabel:      c.TokenLabel,
		SignatureAlgo:   hsm.Algorithm(c.SignatureAlgo),
		KeyLabel:        c.KeyLabel,
		SessionPoolSize: c.SessionPoolSize,
		Verbose:         c.Verbose,
	}
}

// MTLSConfig mirrors transport.Config with yaml tags.
type MTLSConfig struct {
	CertPath         string `mapstructure:"cert_path"`
	KeyPath          string `mapstructure:"key_path"`
	KeyPassphrase    string `mapstructure:"key_passphrase"`
	CACertPath       string `mapstructure:"ca_cert_path"`
	CRLPath          string `mapstructure:"crl_path"`
	TLSVersion       string `mapstructure:"tls_version"`
	VerifyPeer       bool   `mapstructure:"verify_peer"`
	VerifyHostname   bool   `mapstructure:"verify_hostname"`
	ConnectTimeoutMs int    `mapstructure:"connect_timeout_ms"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryDelayMs     int    `mapstructure:"retry_delay_ms"`
	EnablePooling    bool   `mapstructure:"enable_pooling"`
	MaxConnections   int    `mapstructure:"max_connections"`
	IdleTimeoutMs    int    `mapstructure:"idle_timeout_ms"`
}

func (c MTLSConfig) ToTransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.CertPath = c.CertPath
	cfg.KeyPath = c.KeyPath
	cfg.KeyPassphrase = c.KeyPassphrase
	cfg.CACertPath = c.CACertPath
	cfg.CRLPath = c.CRLPath
	if strings.EqualFold(c.TLSVersion, "1.2") || strings.EqualFold(c.TLSVersion, string(transport.TLSv12)) {
		cfg.TLSVersion = transport.TLSv12
	}
	cfg.VerifyPeer = c.VerifyPeer
	cfg.VerifyHostname = c.VerifyHostname
	if c.ConnectTimeoutMs > 0 {
		cfg.ConnectTimeoutMs = c.ConnectTimeoutMs
	}
	if c.RequestTimeoutMs > 0 {
		cfg.RequestTimeoutMs = c.RequestTimeoutMs
	}
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.RetryDelayMs > 0 {
		cfg.RetryDelayMs = c.RetryDelayMs
	}
	cfg.EnablePooling = c.EnablePooling
	if c.MaxConnections > 0 {
		cfg.MaxConnections = c.MaxConnections
	}
	if c.IdleTimeoutMs > 0 {
		cfg.IdleTimeoutMs = c.IdleTimeoutMs
	}
	return cfg
}

// RouterConfig mirrors router.Config with yaml tags.
type RouterConfig struct {
	MaxConcurrentShards int `mapstructure:"max_concurrent_shards"`
	ScatterTimeoutMs    int `mapstructure:"scatter_timeout_ms"`
	ReplicaCount        int `mapstructure:"replica_count"`
}

func (c RouterConfig) ToRouterConfig() router.Config {
	cfg := router.DefaultConfig()
	if c.MaxConcurrentShards > 0 {
		cfg.MaxConcurrentShards = c.MaxConcurrentShards
	}
	if c.ScatterTimeoutMs > 0 {
		cfg.ScatterTimeoutMs = c.ScatterTimeoutMs
	}
	if c.ReplicaCount > 0 {
		cfg.ReplicaCount = c.ReplicaCount
	}
	return cfg
}

// Config is shardd's full process configuration.
type Config struct {
	ShardID      string       `mapstructure:"shard_id"`
	ListenAddr   string       `mapstructure:"listen_addr"`
	TopologyFile string       `mapstructure:"topology_file"`
	VirtualNodes int          `mapstructure:"virtual_nodes"`
	SigningOn    bool         `mapstructure:"signing_enabled"`
	HSM          HSMConfig    `mapstructure:"hsm"`
	MTLS         MTLSConfig   `mapstructure:"mtls"`
	Router       RouterConfig `mapstructure:"router"`
}

// Load reads path (if present), applies defaults, and layers THEMIS_*
// environment overrides on top, per spec.md §6's THEMIS_HSM_PIN and
// THEMIS_HSM_SESSION_POOL plus the wider ambient-config convention.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("THEMIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8443")
	v.SetDefault("virtual_nodes", 150)
	v.SetDefault("signing_enabled", true)
	v.SetDefault("hsm.session_pool_size", hsm.DefaultSessionPoolSize)
	v.SetDefault("hsm.key_label", hsm.DefaultKeyLabel)
	v.SetDefault("hsm.signature_algorithm", string(hsm.AlgoRSASHA256))
	v.SetDefault("mtls.tls_version", "1.3")
	v.SetDefault("mtls.verify_peer", true)
	v.SetDefault("mtls.verify_hostname", true)
	v.SetDefault("mtls.enable_pooling", true)
	v.SetDefault("router.max_concurrent_shards", 8)
	v.SetDefault("router.scatter_timeout_ms", 5_000)
	v.SetDefault("router.replica_count", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// viper's env override for nested keys needs an explicit bind per path
	// it doesn't discover through Unmarshal alone.
	if pin := v.GetString("hsm.pin"); pin != "" {
		cfg.HSM.PIN = pin
	}
	return &cfg, nil
}
