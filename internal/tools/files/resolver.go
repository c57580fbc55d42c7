// Package files implements the filesystem standard tools (FileRead,
// FileWrite, FileList). Path safety is delegated to the security
// manager's ValidatePath rather than reimplemented here; this package's
// own resolver only joins a relative path under a workspace root before
// handing the result to the manager.
package files

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolver joins a workspace-relative path onto Root. It does not by
// itself guarantee the result stays under Root — that check belongs to
// the security manager's ValidatePath, which every tool in this package
// calls before touching the filesystem.
type Resolver struct {
	Root string
}

// Join returns an absolute path for rel under the resolver's root.
func (r Resolver) Join(rel string) (string, error) {
	clean := strings.TrimSpace(rel)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if filepath.IsAbs(clean) {
		return filepath.Clean(clean), nil
	}
	return filepath.Join(rootAbs, clean), nil
}
