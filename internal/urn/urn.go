// Package urn implements the canonical resource name described in spec.md
// §3/§4.A: a location-transparent identifier parsed once and never mutated.
package urn

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

// Model is the closed set of data models a URN can address.
type Model string

const (
	ModelRelational Model = "relational"
	ModelGraph      Model = "graph"
	ModelVector     Model = "vector"
	ModelTimeseries Model = "timeseries"
	ModelDocument   Model = "document"
)

var validModels = map[Model]bool{
	ModelRelational: true,
	ModelGraph:      true,
	ModelVector:     true,
	ModelTimeseries: true,
	ModelDocument:   true,
}

var uuidPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

const prefix = "urn:themis:"

// URN is an immutable value: (model, namespace, collection, uuid).
type URN struct {
	Model      Model
	Namespace  string
	Collection string
	UUID       string
}

// Parse validates and decomposes a canonical URN string.
func Parse(s string) (URN, error) {
	if !strings.HasPrefix(s, prefix) {
		return URN{}, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonUrnInvalid, s)
	}

	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return URN{}, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonUrnInvalid, s)
	}

	model := Model(parts[2])
	namespace := parts[3]
	collection := parts[4]
	uuid := parts[5]

	if !validModels[model] {
		return URN{}, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonModelInvalid, string(model))
	}
	if namespace == "" || collection == "" {
		return URN{}, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonUrnInvalid, s)
	}
	if !uuidPattern.MatchString(uuid) {
		return URN{}, shardcoreerr.New(shardcoreerr.KindParse, shardcoreerr.ReasonUuidInvalid, uuid)
	}

	return URN{Model: model, Namespace: namespace, Collection: collection, UUID: uuid}, nil
}

// String renders the canonical form; round-trips with Parse.
func (u URN) String() string {
	return prefix + string(u.Model) + ":" + u.Namespace + ":" + u.Collection + ":" + u.UUID
}

// Hash returns a 64-bit hash of the UUID bytes alone, so siblings in a
// collection spread across shards instead of clumping behind one namespace.
func (u URN) Hash() uint64 {
	return xxhash.Sum64String(u.UUID)
}

// ResourceID returns a collection-local key, "{collection}:{uuid}".
func (u URN) ResourceID() string {
	return u.Collection + ":" + u.UUID
}

// Equal compares the full tuple.
func (u URN) Equal(other URN) bool {
	return u == other
}
