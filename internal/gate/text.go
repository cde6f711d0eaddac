package gate

import (
	"path/filepath"
	"strings"
)

const ellipsis = "..."

// Truncate shortens s to at most max runes. Longer strings keep their first
// max-3 runes followed by "...".
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string(r[:max])
	}
	return string(r[:max-len(ellipsis)]) + ellipsis
}

// ShortenHome replaces a leading home directory in path with "~".
func ShortenHome(path, home string) string {
	if home == "" || path == "" {
		return path
	}
	home = filepath.Clean(home)
	if home == "/" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(filepath.Separator)) {
		return "~" + path[len(home):]
	}
	return path
}
