package capability

// Baseline returns the implicit capabilities every participant holds
// regardless of configuration: system/register and mcp/response are always
// granted.
func Baseline() []Pattern {
	return []Pattern{
		{Kind: "system/register"},
		{Kind: "mcp/response"},
	}
}

// Merge combines pattern sets, deduplicating by canonical equality. Used
// when folding runtime grants or system/register additions into a
// participant's static set.
func Merge(sets ...[]Pattern) []Pattern {
	seen := make(map[string]struct{})
	var out []Pattern
	for _, set := range sets {
		for _, p := range set {
			c := p.Canonical()
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether patterns already holds a pattern canonically
// equal to p.
func Contains(patterns []Pattern, p Pattern) bool {
	target := p.Canonical()
	for _, existing := range patterns {
		if existing.Canonical() == target {
			return true
		}
	}
	return false
}
