// Package report writes run summaries to disk for audit.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fedragon/notion-cleanup/internal/models"

	"github.com/natefinch/atomic"
)

// Write stores summary as indented JSON at path. The file is replaced
// atomically, so readers see either the previous report or the new one.
func Write(path string, summary *models.RunSummary) error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("unable to encode report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("unable to create report directory %v: %w", dir, err)
		}
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("unable to write report %v: %w", path, err)
	}

	return nil
}
