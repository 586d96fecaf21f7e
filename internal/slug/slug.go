// Package slug derives stable document keys from human-entered names:
// "Team Alpha" -> "team-alpha".
package slug

import "strings"

// maxLen bounds join keys and group IDs so they stay typeable.
const maxLen = 40

// Make lowercases s, replaces runs of anything outside [a-z0-9-] with a
// single hyphen, strips leading/trailing hyphens, and truncates.
// Returns "" if nothing slug-worthy remains.
func Make(s string) string {
	var b strings.Builder
	lastHyphen := true // swallow leading hyphens
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "-")
	}
	return out
}
