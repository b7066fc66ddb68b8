package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace confines tool file access to a single root directory.
//
// Membership is decided by path-component containment, never by string
// prefix: with root /workspace, the path /workspace2/x is rejected even
// though it shares the prefix.
type Workspace struct {
	Root string
}

// NewWorkspace returns a workspace rooted at dir, falling back to the
// current directory when dir is empty.
func NewWorkspace(dir string) Workspace {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return Workspace{Root: dir}
}

// Resolve returns the absolute real path for input, or an error when the
// result is not a descendant of the workspace root. Relative inputs are
// joined to the root; absolute inputs are accepted as-is before the
// containment check. Symlinks and ".." segments are resolved first.
func (w Workspace) Resolve(input string) (string, error) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}

	root, err := w.realRoot()
	if err != nil {
		return "", err
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(root, clean)
	}

	resolved, err := resolveExistingPrefix(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", fmt.Errorf("path %q is outside the workspace", input)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q is outside the workspace", input)
	}
	return resolved, nil
}

// Rel returns the forward-slash workspace-relative form of an absolute
// path, for sandbox URLs and rendered output.
func (w Workspace) Rel(abs string) string {
	root, err := w.realRoot()
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// SandboxURL returns the sandbox-scheme reference for an absolute path
// inside the workspace.
func (w Workspace) SandboxURL(abs string) string {
	return "sandbox:///" + w.Rel(abs)
}

func (w Workspace) realRoot() (string, error) {
	root := strings.TrimSpace(w.Root)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// resolveExistingPrefix evaluates symlinks on the longest existing ancestor
// of path and rejoins the remainder, so paths that do not exist yet (write
// targets) still resolve deterministically.
func resolveExistingPrefix(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}

	dir := path
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real, nil
		}
	}
	return filepath.Clean(path), nil
}
