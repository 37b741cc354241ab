package analyzer

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Dependency kinds.
const (
	KindImport    = "import"
	KindCSSImport = "css-import"
)

// Dependency is one project-local import found in a file. Target is project
// relative and slash separated.
type Dependency struct {
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

var (
	esImportRe      = regexp.MustCompile(`(?m)\bimport\s+(?:[^'"();]*?\s+from\s+)?['"]([^'"]+)['"]`)
	esExportFromRe  = regexp.MustCompile(`(?m)\bexport\s+[^'"();]*?\s+from\s+['"]([^'"]+)['"]`)
	requireRe       = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	dynamicImportRe = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	cssImportRe     = regexp.MustCompile(`@import\s+(?:url\(\s*)?['"]?([^'")\s;]+)['"]?\s*\)?`)
)

// extractDependencies scans content for import, require, dynamic import and
// CSS @import statements. Specifiers that do not start with "." or "/" name
// external packages and are discarded; so are paths escaping the project.
func extractDependencies(file string, content []byte) []Dependency {
	if len(content) == 0 {
		return nil
	}
	text := string(content)
	dir := path.Dir(filepath.ToSlash(file))

	seen := map[Dependency]bool{}
	var out []Dependency
	add := func(ref, kind string) {
		target, ok := resolveSpecifier(dir, ref)
		if !ok {
			return
		}
		d := Dependency{Target: target, Kind: kind}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, re := range []*regexp.Regexp{esImportRe, esExportFromRe, requireRe, dynamicImportRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			add(m[1], KindImport)
		}
	}
	if isStylesheet(file) {
		for _, m := range cssImportRe.FindAllStringSubmatch(text, -1) {
			add(m[1], KindCSSImport)
		}
	}
	return out
}

func resolveSpecifier(dir, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	var target string
	switch {
	case strings.HasPrefix(ref, "/"):
		target = path.Clean(strings.TrimPrefix(ref, "/"))
	case strings.HasPrefix(ref, "."):
		target = path.Join(dir, ref)
	default:
		return "", false
	}
	if target == "." || target == ".." || strings.HasPrefix(target, "../") {
		return "", false
	}
	return target, true
}

func isStylesheet(file string) bool {
	switch strings.ToLower(path.Ext(file)) {
	case ".css", ".scss", ".sass", ".less":
		return true
	}
	return false
}

// resolveExtensions is the lookup order for extensionless imports.
var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".vue", ".css", ".scss"}

// resolveOnDisk completes an extensionless target against files that exist
// under projectPath, trying the importer's own extension first and then
// index files. Targets that resolve to nothing are returned unchanged.
func resolveOnDisk(projectPath, target, importerExt string) string {
	if path.Ext(target) != "" {
		return target
	}
	exists := func(rel string) bool {
		info, err := os.Stat(filepath.Join(projectPath, filepath.FromSlash(rel)))
		return err == nil && !info.IsDir()
	}
	exts := append([]string{importerExt}, resolveExtensions...)
	for _, ext := range exts {
		if ext != "" && exists(target+ext) {
			return target + ext
		}
	}
	for _, ext := range exts {
		if ext != "" && exists(target+"/index"+ext) {
			return target + "/index" + ext
		}
	}
	return target
}
