package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pathSet(paths ...string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}

func TestResolveExactAndSuffixes(t *testing.T) {
	paths := pathSet(
		"src/api.ts",
		"src/styles.css",
		"src/components/index.tsx",
		"lib/util/__init__.py",
	)

	got, ok := Resolve("./api", "src/app.ts", paths)
	assert.True(t, ok)
	assert.Equal(t, "src/api.ts", got)

	// Exact match wins before suffix probing
	got, ok = Resolve("./styles.css", "src/app.ts", paths)
	assert.True(t, ok)
	assert.Equal(t, "src/styles.css", got)

	got, ok = Resolve("./components", "src/app.ts", paths)
	assert.True(t, ok)
	assert.Equal(t, "src/components/index.tsx", got)

	got, ok = Resolve("../lib/util", "src/app.ts", paths)
	assert.True(t, ok)
	assert.Equal(t, "lib/util/__init__.py", got)
}

func TestResolveParentTraversal(t *testing.T) {
	paths := pathSet("src/types/user.ts")

	got, ok := Resolve("../types/user", "src/components/profile.tsx", paths)
	assert.True(t, ok)
	assert.Equal(t, "src/types/user.ts", got)
}

func TestResolvePythonRelative(t *testing.T) {
	paths := pathSet(
		"app/models.py",
		"app/api/__init__.py",
		"shared/config.py",
	)

	got, ok := Resolve(".models", "app/main.py", paths)
	assert.True(t, ok)
	assert.Equal(t, "app/models.py", got)

	got, ok = Resolve(".api", "app/main.py", paths)
	assert.True(t, ok)
	assert.Equal(t, "app/api/__init__.py", got)

	// Each extra leading dot climbs one directory
	got, ok = Resolve("..shared.config", "app/api/routes.py", paths)
	assert.True(t, ok)
	assert.Equal(t, "shared/config.py", got)

	// A bare dot names the importing file's own package
	got, ok = Resolve(".", "app/api/routes.py", paths)
	assert.True(t, ok)
	assert.Equal(t, "app/api/__init__.py", got)
}

func TestResolvePythonRelativeRejectsRootEscape(t *testing.T) {
	paths := pathSet("secrets.py")

	_, ok := Resolve("..secrets", "main.py", paths)
	assert.False(t, ok)

	_, ok = Resolve(".", "main.py", paths)
	assert.False(t, ok)
}

func TestResolveRejectsNonRelative(t *testing.T) {
	paths := pathSet("react.ts", "lodash.js")

	_, ok := Resolve("react", "src/app.ts", paths)
	assert.False(t, ok)

	_, ok = Resolve("@scope/pkg", "src/app.ts", paths)
	assert.False(t, ok)
}

func TestResolveRejectsRootEscape(t *testing.T) {
	paths := pathSet("secrets.ts")

	_, ok := Resolve("../../secrets", "src/app.ts", paths)
	assert.False(t, ok)
}

func TestResolveUnknownTarget(t *testing.T) {
	_, ok := Resolve("./missing", "src/app.ts", pathSet("src/app.ts"))
	assert.False(t, ok)
}
