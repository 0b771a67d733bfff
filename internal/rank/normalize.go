// Package rank compares two ranked URL lists by set overlap and Spearman
// rank correlation, and holds query-ordered collections of such lists.
package rank

import "strings"

// Normalize canonicalizes a result URL for comparison: lower-case, without a
// leading http:// or https:// scheme and without trailing slashes.
// Normalize(Normalize(u)) == Normalize(u) for every u.
func Normalize(u string) string {
	u = strings.ToLower(u)
	for {
		switch {
		case strings.HasPrefix(u, "https://"):
			u = u[len("https://"):]
		case strings.HasPrefix(u, "http://"):
			u = u[len("http://"):]
		default:
			return strings.TrimRight(u, "/")
		}
	}
}

// NormalizeAll normalizes every URL of list, keeping order and duplicates.
func NormalizeAll(list []string) []string {
	out := make([]string, len(list))
	for i, u := range list {
		out[i] = Normalize(u)
	}
	return out
}
