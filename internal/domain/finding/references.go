package finding

import "sort"

// SortedUnique returns the values deduplicated and in ascending lexical
// order. Reference lists are stored in this normalized form.
func SortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}

	sort.Strings(out)
	return out
}
