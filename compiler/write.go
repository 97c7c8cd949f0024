package compiler

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteArtifacts writes every artifact in a Result to outDir, creating
// parent directories as needed (component_db/, _control_plane/,
// _suggestions/ are relative subpaths already present in the artifact
// keys), per the on-disk layout in spec.md §6.
func WriteArtifacts(outDir string, result *Result) error {
	for relPath, data := range result.Artifacts {
		fullPath := filepath.Join(outDir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return fmt.Errorf("compiler: creating directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(fullPath, data, 0644); err != nil {
			return fmt.Errorf("compiler: writing %s: %w", relPath, err)
		}
	}
	return nil
}
