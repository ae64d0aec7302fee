package transport

import "strings"

// NormalizeEndpoint applies spec.md §4.G's endpoint parsing rule:
// "[scheme://]host[:port]"; a scheme already present is kept as-is,
// otherwise https:// is treated as implicit for callers that need one.
func NormalizeEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}
