package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fedragon/notion-cleanup/internal/models"
	"github.com/fedragon/notion-cleanup/internal/secrets"

	"github.com/google/uuid"
)

const DefaultAPIKeyName = "NOTION_API_KEY"

var (
	placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

	apiKeyPrefixes = []string{"ntn_", "secret_"}

	ErrMissingAPIKey = errors.New("API key is not set")
	ErrInvalidAPIKey = errors.New("API key is invalid")
)

// Resolve substitutes ${VAR} placeholders in every database id, name and
// filter string value, and normalises ids to their dashed form. The returned slice is a copy: cfg is
// left untouched.
func Resolve(ctx context.Context, cfg *models.Config, provider secrets.Provider) ([]models.Database, error) {
	resolved := make([]models.Database, 0, len(cfg.Databases))

	for i, db := range cfg.Databases {
		id, err := Substitute(ctx, db.ID, provider)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "database_id", Message: err.Error()}
		}

		id, err = NormalizeID(id)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "database_id", Message: err.Error()}
		}

		name, err := Substitute(ctx, db.Name, provider)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "name", Message: err.Error()}
		}

		filters, err := substituteFilters(ctx, db.Filters, provider)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "filters", Message: err.Error()}
		}

		db.ID = id
		db.Name = name
		db.Filters = filters
		resolved = append(resolved, db)
	}

	return resolved, nil
}

// Substitute replaces every ${VAR} in s with the value provider holds for
// VAR. A placeholder without a value is an error.
func Substitute(ctx context.Context, s string, provider secrets.Provider) (string, error) {
	var firstErr error

	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		name := placeholder.FindStringSubmatch(match)[1]
		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			firstErr = fmt.Errorf("references unresolved placeholder ${%s}: %w", name, err)
			return match
		}

		return value
	})

	if firstErr != nil {
		return "", firstErr
	}

	return out, nil
}

// substituteFilters runs Substitute on every string value of the filter
// object. Filters without placeholders are returned as they are.
func substituteFilters(ctx context.Context, raw json.RawMessage, provider secrets.Provider) (json.RawMessage, error) {
	if !placeholder.Match(raw) {
		return raw, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var filters interface{}
	if err := dec.Decode(&filters); err != nil {
		return nil, err
	}

	filters, err := substituteValue(ctx, filters, provider)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(filters); err != nil {
		return nil, err
	}

	return json.RawMessage(bytes.TrimSpace(buf.Bytes())), nil
}

func substituteValue(ctx context.Context, v interface{}, provider secrets.Provider) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return Substitute(ctx, val, provider)
	case map[string]interface{}:
		for k, item := range val {
			out, err := substituteValue(ctx, item, provider)
			if err != nil {
				return nil, err
			}
			val[k] = out
		}
	case []interface{}:
		for i, item := range val {
			out, err := substituteValue(ctx, item, provider)
			if err != nil {
				return nil, err
			}
			val[i] = out
		}
	}

	return v, nil
}

// NormalizeID accepts a database id with dashes anywhere, or none, and returns
// it in the 8-4-4-4-12 form the API expects.
func NormalizeID(id string) (string, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(id), " ", "")
	if clean == "" {
		return "", errors.New("must not be empty")
	}

	clean = strings.ReplaceAll(clean, "-", "")
	if len(clean) != 32 {
		return "", fmt.Errorf("%q is not a valid id (expected 32 hexadecimal characters)", id)
	}

	parsed, err := uuid.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("%q is not a valid id (expected 32 hexadecimal characters)", id)
	}

	return parsed.String(), nil
}

// APIKey loads the API key stored under name and checks its shape.
func APIKey(ctx context.Context, provider secrets.Provider, name string) (string, error) {
	raw, err := provider.GetSecret(ctx, name)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, name)
		}
		return "", err
	}

	key := strings.TrimSpace(raw)
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, name)
	}

	if strings.ContainsAny(key, "\n\r\t ") {
		return "", fmt.Errorf("%w: it contains whitespace characters", ErrInvalidAPIKey)
	}

	for _, prefix := range apiKeyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w: it should start with one of %s (got %d characters)",
		ErrInvalidAPIKey, strings.Join(apiKeyPrefixes, ", "), len(key))
}

// DryRunFromEnv interprets the value of the DRY_RUN environment variable.
func DryRunFromEnv(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
