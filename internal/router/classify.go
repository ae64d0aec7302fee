package router

import (
	"regexp"
	"strings"

	"github.com/themis-db/shardcore/internal/urn"
)

var urnLiteralPattern = regexp.MustCompile(`urn:themis:[a-zA-Z]+:[^:\s]+:[^:\s]+:[0-9a-fA-F-]{36}`)
var namespacePattern = regexp.MustCompile(`(?i)NAMESPACE\s+([A-Za-z0-9_]+)`)

// analyzeQuery classifies a query string per spec.md §4.J. Order matters:
// a URN literal wins over JOIN/NAMESPACE keywords that might also appear in
// the same text.
func analyzeQuery(query string) (Strategy, string) {
	if m := urnLiteralPattern.FindString(query); m != "" {
		if _, err := urn.Parse(m); err == nil {
			return SingleShard, m
		}
	}
	if strings.Contains(strings.ToUpper(query), "JOIN") {
		return CrossShardJoin, ""
	}
	if m := namespacePattern.FindStringSubmatch(query); m != nil {
		return NamespaceLocal, m[1]
	}
	return ScatterGather, ""
}
