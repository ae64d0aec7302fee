package topology

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// YAMLStore is the reference Store binding: a single YAML file on disk,
// consistent "read your own writes" within the local process. Cross-process
// consistency (e.g. multiple shard processes sharing one topology file) is a
// deployment concern the deployer must bound, per spec.md §9's request that
// implementations document the store's consistency expectations.
type YAMLStore struct {
	Path string
}

type yamlDoc struct {
	Shards map[string]ShardInfo `yaml:"shards"`
}

func (s *YAMLStore) Load() (map[string]ShardInfo, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return make(map[string]ShardInfo), nil
	}
	if err != nil {
		return nil, shardcoreerr.Wrap(err, shardcoreerr.KindTopology, shardcoreerr.ReasonTopologyMiss, s.Path)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, shardcoreerr.Wrap(err, shardcoreerr.KindTopology, shardcoreerr.ReasonTopologyMiss, s.Path)
	}
	if doc.Shards == nil {
		doc.Shards = make(map[string]ShardInfo)
	}
	return doc.Shards, nil
}

func (s *YAMLStore) SaveAll(shards map[string]ShardInfo) error {
	doc := yamlDoc{Shards: shards}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}
