package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/faithtech/sitewalk/internal/performance/engine"
)

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("no results to write")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// WriteJSONFile writes result to path, creating parent directories.
func WriteJSONFile(path string, result *engine.TestResult) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
