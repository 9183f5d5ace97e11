package permissions

// Merge combines several policies into one. A grant present in any input is
// present in the result; a blanket `true` at any level dominates narrower
// sub-documents at the same level.
func Merge(policies ...Policy) Policy {
	merged := Policy{}
	seen := map[string]struct{}{}
	for _, p := range policies {
		for category := range p {
			if _, ok := seen[category]; ok {
				continue
			}
			seen[category] = struct{}{}
			merged[category] = mergeValues(policies, category)
		}
	}
	return merged
}

// mergeValues merges the values stored under key across all policies.
func mergeValues(policies []Policy, key string) any {
	var maps []map[string]any
	for _, p := range policies {
		switch v := p[key].(type) {
		case bool:
			if v {
				return true
			}
		case map[string]any:
			maps = append(maps, v)
		case Policy:
			maps = append(maps, map[string]any(v))
		}
	}
	if len(maps) == 0 {
		return nil
	}
	if len(maps) == 1 {
		return maps[0]
	}

	out := map[string]any{}
	seen := map[string]struct{}{}
	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			sub := make([]Policy, 0, len(maps))
			for _, mm := range maps {
				sub = append(sub, Policy(mm))
			}
			out[k] = mergeValues(sub, k)
		}
	}
	return out
}
