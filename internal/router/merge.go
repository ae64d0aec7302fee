package router

// MergeResults flattens shard results into one merged view, per spec.md
// §4.J / §8 invariant 10: merging an empty slice returns an all-zero,
// non-nil MergedResult.
func MergeResults(results []ShardResult) MergedResult {
	merged := MergedResult{
		Results: []interface{}{},
		Errors:  []ShardError{},
	}
	merged.ShardCount = len(results)

	for _, r := range results {
		if !r.Success {
			merged.ErrorCount++
			merged.Errors = append(merged.Errors, ShardError{ShardID: r.ShardID, Error: r.ErrorMsg})
			continue
		}
		merged.SuccessCount++
		merged.Results = append(merged.Results, flatten(r.Data)...)
	}
	return merged
}

// flatten implements spec.md §4.J's merge rule: a shard's data is spread
// into the merge if it is itself an array, or an object carrying a
// top-level "results" array; otherwise the whole payload is pushed as one
// element.
func flatten(data interface{}) []interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case []interface{}:
		return v
	case map[string]interface{}:
		if nested, ok := v["results"].([]interface{}); ok {
			return nested
		}
		return []interface{}{v}
	default:
		return []interface{}{v}
	}
}

// ApplyPagination returns a deterministic slice of merged.Results after the
// merge step (spec.md §4.J). Out-of-range offsets yield an empty slice.
func ApplyPagination(merged MergedResult, offset, limit int) []interface{} {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(merged.Results) {
		return []interface{}{}
	}
	end := len(merged.Results)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return merged.Results[offset:end]
}
