package maincmd

import (
	"path/filepath"
	"strings"
)

// functionName returns the override name if set, else path's base name
// with its extension stripped.
func functionName(override, path string) string {
	if override != "" {
		return override
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
