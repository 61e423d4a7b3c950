package imports

import (
	"path"
	"strings"
)

// candidateSuffixes are probed in order against the known path set.
// Exact match first, then source extensions, then directory entry points.
var candidateSuffixes = []string{
	"",
	".ts", ".tsx", ".js", ".jsx", ".py",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
	"/__init__.py",
}

// Resolve maps an import reference written in fromPath to a concrete
// repo-relative path. Non-relative references are treated as external
// libraries and return ok=false. paths is the set of all known repo paths.
func Resolve(ref, fromPath string, paths map[string]bool) (string, bool) {
	base, ok := targetBase(ref, fromPath)
	if !ok {
		return "", false
	}

	for _, suffix := range candidateSuffixes {
		candidate := base + suffix
		if paths[candidate] {
			return candidate, true
		}
	}

	return "", false
}

// targetBase turns a relative reference into a repo-relative base path.
// References escaping the repo root cannot resolve.
func targetBase(ref, fromPath string) (string, bool) {
	switch {
	case strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../"):
		base := path.Join(path.Dir(fromPath), ref)
		if base == "" || base == "." || strings.HasPrefix(base, "../") {
			return "", false
		}
		return base, true

	case strings.HasPrefix(ref, "."):
		// Python relative form: one dot anchors at the importing file's
		// directory, every extra dot climbs a level, and the remaining
		// dotted module path maps onto directories.
		dots := 0
		for dots < len(ref) && ref[dots] == '.' {
			dots++
		}
		rest := strings.ReplaceAll(ref[dots:], ".", "/")
		base := path.Join(path.Dir(fromPath), strings.Repeat("../", dots-1), rest)
		if base == "" || base == "." || strings.HasPrefix(base, "../") {
			return "", false
		}
		return base, true

	default:
		return "", false
	}
}
