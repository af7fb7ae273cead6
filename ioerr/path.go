package ioerr

import (
	"strings"
)

const (
	extendedUNCPrefix = `\\?\UNC\`
	extendedPrefix    = `\\?\`
)

// CleanPath rewrites extended-length path prefixes to their conventional
// form, before a path is reported back to a caller. `\\?\UNC\host\share`
// becomes `\\host\share`, and `\\?\C:\x` becomes `C:\x`. Other paths are
// returned unchanged.
func CleanPath(path string) string {
	if strings.HasPrefix(path, extendedUNCPrefix) {
		return `\\` + path[len(extendedUNCPrefix):]
	}
	return strings.TrimPrefix(path, extendedPrefix)
}
