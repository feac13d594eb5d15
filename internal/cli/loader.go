package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric   = "E001" // Generic/unknown error
	ErrCodeScanError = "E002" // Directory scan error
	ErrCodeNoFiles   = "E003" // No scenario files found
	ErrCodeNotFound  = "E005" // Path not found
	ErrCodeInvalid   = "E101" // Scenario failed to load or validate

	ErrCodeRunFailed      = "E_RUN_FAILED"
	ErrCodeReplayMismatch = "E_REPLAY_MISMATCH"
)

// LoadError represents an error that occurred while finding scenarios.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isScenarioFile reports whether path has a scenario extension.
func isScenarioFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

// FindScenarioFiles expands paths into scenario files. A file is taken as
// is; a directory is walked recursively, skipping golden directories.
// filter is a glob matched against the file name without extension. The
// result is sorted and de-duplicated.
func FindScenarioFiles(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("invalid filter pattern: %v", err)}
		}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if ok, _ := filepath.Match(filter, name); !ok {
				return
			}
		}
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", root)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", root, err)}
		}

		if !info.IsDir() {
			add(root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && d.Name() == "golden" {
					return filepath.SkipDir
				}
				return nil
			}
			if isScenarioFile(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning %s: %v", root, err)}
		}
	}

	sort.Strings(files)
	return files, nil
}
