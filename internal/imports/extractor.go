package imports

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Language is the parser family a file dispatches to
type Language string

const (
	LangJS      Language = "javascript"
	LangPython  Language = "python"
	LangUnknown Language = ""
)

// SupportedExtensions are the file suffixes the graph tracks
var SupportedExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".py"}

// DetectLanguage maps a file extension to its parser family
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".tsx", ".js", ".jsx":
		return LangJS
	case ".py":
		return LangPython
	default:
		return LangUnknown
	}
}

// IsSupported reports whether the path belongs in the dependency graph
func IsSupported(path string) bool {
	return DetectLanguage(path) != LangUnknown
}

// The extractor is intentionally regex-grade, not AST-grade: it matches
// import-like statements without understanding the surrounding syntax.
// False positives inside strings or comments only add spurious graph edges;
// they never affect lock correctness.
var (
	// import x from 'mod'; import 'mod'; import type {X} from "mod"
	jsImportRe = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w*{},\s$]+\s+from\s+)?['"]([^'"]+)['"]`)
	// export {x} from 'mod'; export * from "mod"
	jsExportFromRe = regexp.MustCompile(`(?m)export\s+(?:[\w*{},\s$]+\s+)?from\s+['"]([^'"]+)['"]`)
	// import('mod')  require('mod')
	jsDynamicRe = regexp.MustCompile(`(?:\bimport|\brequire)\s*\(\s*['"]([^'"]+)['"]\s*\)`)

	// import a.b, c.d
	pyImportRe = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\s*,\s*[\w.]+)*)`)
	// from .mod import x
	pyFromRe = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+|\.+[\w.]*)\s+import\s`)
)

// Extract returns the module references written in source, in document
// order, deduplicated. Non-relative references (bare package names) are
// included here and dropped later by the resolver.
func Extract(content []byte, path string) []string {
	switch DetectLanguage(path) {
	case LangJS:
		return extractJS(string(content))
	case LangPython:
		return extractPython(string(content))
	default:
		return nil
	}
}

func extractJS(src string) []string {
	refs := []string{}
	seen := map[string]bool{}

	add := func(matches [][]string) {
		for _, m := range matches {
			ref := m[1]
			if ref != "" && !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}

	add(jsImportRe.FindAllStringSubmatch(src, -1))
	add(jsExportFromRe.FindAllStringSubmatch(src, -1))
	add(jsDynamicRe.FindAllStringSubmatch(src, -1))

	return refs
}

func extractPython(src string) []string {
	refs := []string{}
	seen := map[string]bool{}

	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	for _, m := range pyImportRe.FindAllStringSubmatch(src, -1) {
		for _, mod := range strings.Split(m[1], ",") {
			add(mod)
		}
	}
	for _, m := range pyFromRe.FindAllStringSubmatch(src, -1) {
		add(m[1])
	}

	return refs
}
