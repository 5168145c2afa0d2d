package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// maxFileSize bounds what gets indexed; larger files are usually generated.
const maxFileSize = 1 << 20

var defaultIgnores = []string{
	".git",
	".sgrep",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	"dist",
	"build",
	"*.min.js",
	"*.bundle.js",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

var knownIgnoreDirs = map[string]bool{
	"node_modules": true, "vendor": true, "__pycache__": true,
	"dist": true, "build": true, ".git": true, ".sgrep": true,
	".idea": true, ".vscode": true,
}

var codeExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".rb": true, ".php": true, ".rs": true,
	".c": true, ".h": true, ".cc": true, ".cpp": true, ".hpp": true,
	".swift": true, ".kt": true, ".scala": true,
}

// IgnoreRules decides which paths under a root are not indexed.
type IgnoreRules struct {
	root     string
	patterns []string
}

// NewIgnoreRules loads the defaults plus root/.gitignore.
func NewIgnoreRules(root string) *IgnoreRules {
	ir := &IgnoreRules{root: root}
	ir.patterns = append(ir.patterns, defaultIgnores...)
	ir.load(filepath.Join(root, ".gitignore"))
	return ir
}

func (ir *IgnoreRules) load(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.Trim(line, "/")
		if line != "" {
			ir.patterns = append(ir.patterns, line)
		}
	}
}

// ShouldIgnore reports whether an absolute path under the root is excluded.
// Plain names only match hidden or well-known build directories so that a
// .gitignore entry for a binary does not hide a source directory of the
// same name.
func (ir *IgnoreRules) ShouldIgnore(path string) bool {
	rel, err := filepath.Rel(ir.root, path)
	if err != nil || rel == "." {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))

	for _, pattern := range ir.patterns {
		if strings.Contains(pattern, "/") {
			if ok, _ := filepath.Match(pattern, filepath.ToSlash(rel)); ok {
				return true
			}
			continue
		}
		if !strings.Contains(pattern, "*") && !strings.HasPrefix(pattern, ".") && !knownIgnoreDirs[pattern] {
			continue
		}
		for _, part := range parts {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

func isCodeFile(path string) bool {
	return codeExts[strings.ToLower(filepath.Ext(path))]
}
