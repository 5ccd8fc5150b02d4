package fetch

import (
	"strings"
)

// maxFilenameLength keeps sanitized names under common filesystem limits,
// leaving room for the ".md" suffix.
const maxFilenameLength = 150

// SanitizeFilename maps a source identifier (URL or filesystem path) to a
// deterministic filename-safe form. The discovery list is deduplicated, so
// two distinct sources colliding after sanitization would require paths
// longer than the truncation limit; the tail is kept because URL paths
// differ there more than at the origin.
func SanitizeFilename(source string) string {
	s := source
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}

	var sb strings.Builder
	lastUnderscore := false
	for _, r := range s {
		safe := r == '.' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if safe {
			sb.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}

	name := strings.Trim(sb.String(), "_.")
	if name == "" {
		name = "source"
	}
	if len(name) > maxFilenameLength {
		name = name[len(name)-maxFilenameLength:]
		name = strings.TrimLeft(name, "_.")
	}
	return name
}
