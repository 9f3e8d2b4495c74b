package graph

import "strings"

// FileFromID guesses the owning file of a function id of the form
// "<file>:<discriminator>:<discriminator>". With three or more segments the
// last two are dropped; with exactly two the last one is dropped. An id
// without a colon yields "".
//
// This is a fallback only. It misparses file paths that themselves contain
// colons (e.g. Windows drive letters), so ShardStore consults explicit file
// hints first and uses this only when none is known.
func FileFromID(id string) string {
	parts := strings.Split(id, ":")
	switch {
	case len(parts) >= 3:
		return strings.Join(parts[:len(parts)-2], ":")
	case len(parts) == 2:
		return parts[0]
	default:
		return ""
	}
}
