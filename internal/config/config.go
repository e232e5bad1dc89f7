// Package config loads and validates cleanup rules.
//
// A rules file lists the databases to clean up:
//
//	{
//	  "databases": [
//	    {
//	      "database_id": "${TASKS_DATABASE_ID}",
//	      "name": "Tasks",
//	      "filters": {"property": "Status", "status": {"equals": "Done"}},
//	      "dry_run": false
//	    }
//	  ]
//	}
//
// Files ending in .yaml or .yml are read as YAML with the same shape.
// Placeholders are left untouched by Load and substituted by Resolve, so
// that a file can be validated without the environment it runs in.
package config

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fedragon/notion-cleanup/internal/models"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

// ValidationError describes a problem with the rules file. Index is the
// position of the offending entry in the databases list, or -1 when the
// problem is not tied to one entry.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Message)
	}

	return fmt.Sprintf("invalid configuration: databases[%d].%s %s", e.Index, e.Field, e.Message)
}

type entry struct {
	DatabaseID *string
	Name       string
	Filters    json.RawMessage
	DryRun     *bool
}

type jsonEntry struct {
	DatabaseID *string         `json:"database_id"`
	Name       string          `json:"name"`
	Filters    json.RawMessage `json:"filters"`
	DryRun     *bool           `json:"dry_run"`
}

type yamlEntry struct {
	DatabaseID *string     `yaml:"database_id"`
	Name       string      `yaml:"name"`
	Filters    interface{} `yaml:"filters"`
	DryRun     *bool       `yaml:"dry_run"`
}

// Load reads the rules file at path and validates its structure.
func Load(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read configuration file %s: %w", path, err)
	}

	var entries []entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = decodeYAML(data)
	default:
		entries, err = decodeJSON(data)
	}
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Databases:   make([]models.Database, 0, len(entries)),
		Fingerprint: Fingerprint(data),
	}

	for i, e := range entries {
		if e.DatabaseID == nil {
			return nil, &ValidationError{Index: i, Field: "database_id", Message: "is required"}
		}
		if err := validateFilters(i, e.Filters); err != nil {
			return nil, err
		}

		db := models.Database{
			ID:      strings.TrimSpace(*e.DatabaseID),
			Name:    e.Name,
			Filters: e.Filters,
		}
		if e.DryRun != nil {
			db.DryRun = *e.DryRun
		}

		cfg.Databases = append(cfg.Databases, db)
	}

	return cfg, nil
}

func decodeJSON(data []byte) ([]entry, error) {
	var file struct {
		Databases *[]jsonEntry `json:"databases"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&file); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "databases" {
			return nil, &ValidationError{Index: -1, Field: "databases", Message: "must be a list"}
		}
		return nil, fmt.Errorf("invalid JSON in configuration file: %w", err)
	}

	if file.Databases == nil {
		return nil, &ValidationError{Index: -1, Field: "databases", Message: "is required"}
	}

	entries := make([]entry, 0, len(*file.Databases))
	for _, e := range *file.Databases {
		entries = append(entries, entry(e))
	}

	return entries, nil
}

func decodeYAML(data []byte) ([]entry, error) {
	var file struct {
		Databases *[]yamlEntry `yaml:"databases"`
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid YAML in configuration file: %w", err)
	}

	if file.Databases == nil {
		return nil, &ValidationError{Index: -1, Field: "databases", Message: "is required"}
	}

	entries := make([]entry, 0, len(*file.Databases))
	for i, e := range *file.Databases {
		var filters json.RawMessage
		if e.Filters != nil {
			raw, err := json.Marshal(e.Filters)
			if err != nil {
				return nil, &ValidationError{Index: i, Field: "filters", Message: fmt.Sprintf("cannot be encoded as JSON: %v", err)}
			}
			filters = raw
		}

		entries = append(entries, entry{
			DatabaseID: e.DatabaseID,
			Name:       e.Name,
			Filters:    filters,
			DryRun:     e.DryRun,
		})
	}

	return entries, nil
}

// validateFilters rejects missing, non-object and empty filters: an empty
// filter matches every record of the database.
func validateFilters(index int, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &ValidationError{Index: index, Field: "filters", Message: "is required"}
	}

	var fields map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		return &ValidationError{Index: index, Field: "filters", Message: "must be an object"}
	}
	if len(fields) == 0 {
		return &ValidationError{Index: index, Field: "filters", Message: "must not be empty"}
	}

	return nil
}

// Fingerprint returns the hex-encoded BLAKE3 digest of data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
