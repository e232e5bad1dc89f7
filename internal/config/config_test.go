package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fedragon/notion-cleanup/internal/secrets"

	"github.com/stretchr/testify/require"
)

const dbID = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "rules.json", `{
  "databases": [
    {
      "database_id": "${TASKS_DB}",
      "name": "Tasks",
      "filters": {"property": "Status", "status": {"equals": "Done"}},
      "dry_run": true
    },
    {
      "database_id": "`+dbID+`",
      "filters": {"property": "Archived", "checkbox": {"equals": true}}
    }
  ]
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Databases, 2)

	first := cfg.Databases[0]
	require.Equal(t, "${TASKS_DB}", first.ID)
	require.Equal(t, "Tasks", first.Name)
	require.True(t, first.DryRun)
	require.JSONEq(t, `{"property": "Status", "status": {"equals": "Done"}}`, string(first.Filters))

	second := cfg.Databases[1]
	require.Equal(t, dbID, second.ID)
	require.False(t, second.DryRun)
	require.NotEmpty(t, cfg.Fingerprint)
}

func TestLoadYAMLMatchesJSON(t *testing.T) {
	jsonPath := writeFile(t, "rules.json", `{"databases": [{"database_id": "`+dbID+`", "name": "Tasks", "filters": {"property": "Status", "status": {"equals": "Done"}}}]}`)
	yamlPath := writeFile(t, "rules.yaml", `
databases:
  - database_id: "`+dbID+`"
    name: Tasks
    filters:
      property: Status
      status:
        equals: Done
`)

	fromJSON, err := Load(jsonPath)
	require.NoError(t, err)
	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)

	require.Len(t, fromYAML.Databases, 1)
	require.Equal(t, fromJSON.Databases[0].ID, fromYAML.Databases[0].ID)
	require.Equal(t, fromJSON.Databases[0].Name, fromYAML.Databases[0].Name)
	require.JSONEq(t, string(fromJSON.Databases[0].Filters), string(fromYAML.Databases[0].Filters))
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	cases := []struct {
		name    string
		content string
		index   int
		field   string
	}{
		{
			name:    "missing databases key",
			content: `{"rules": []}`,
			index:   -1,
			field:   "databases",
		},
		{
			name:    "databases is not a list",
			content: `{"databases": {"database_id": "x"}}`,
			index:   -1,
			field:   "databases",
		},
		{
			name:    "missing database_id",
			content: `{"databases": [{"filters": {"a": 1}}]}`,
			index:   0,
			field:   "database_id",
		},
		{
			name:    "missing filters",
			content: `{"databases": [{"database_id": "x"}, {"database_id": "y"}]}`,
			index:   0,
			field:   "filters",
		},
		{
			name:    "null filters",
			content: `{"databases": [{"database_id": "x", "filters": {"a": 1}}, {"database_id": "y", "filters": null}]}`,
			index:   1,
			field:   "filters",
		},
		{
			name:    "filters is not an object",
			content: `{"databases": [{"database_id": "x", "filters": ["a"]}]}`,
			index:   0,
			field:   "filters",
		},
		{
			name:    "empty filters",
			content: `{"databases": [{"database_id": "x", "filters": {}}]}`,
			index:   0,
			field:   "filters",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "rules.json", c.content))

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Equal(t, c.index, vErr.Index)
			require.Equal(t, c.field, vErr.Field)
		})
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	_, err := Load(writeFile(t, "rules.json", `{"databases": [`))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	require.Equal(t, Fingerprint([]byte("a")), Fingerprint([]byte("a")))
	require.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
	require.Len(t, Fingerprint(nil), 64)
}

func TestResolve(t *testing.T) {
	path := writeFile(t, "rules.json", `{"databases": [
  {"database_id": "${TASKS_DB}", "name": "${TEAM} tasks", "filters": {"a": 1}},
  {"database_id": "01234567-89ab-cdef-0123-456789abcdef", "filters": {"b": 2}}
]}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	provider := secrets.StaticProvider{
		"TASKS_DB": "FEDCBA9876543210FEDCBA9876543210",
		"TEAM":     "ops",
	}

	resolved, err := Resolve(context.Background(), cfg, provider)
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	require.Equal(t, "fedcba98-7654-3210-fedc-ba9876543210", resolved[0].ID)
	require.Equal(t, "ops tasks", resolved[0].Name)
	require.Equal(t, "01234567-89ab-cdef-0123-456789abcdef", resolved[1].ID)

	// the loaded configuration is left untouched
	require.Equal(t, "${TASKS_DB}", cfg.Databases[0].ID)
}

func TestResolveFailsOnUnresolvedPlaceholder(t *testing.T) {
	cfg, err := Load(writeFile(t, "rules.json", `{"databases": [
  {"database_id": "`+dbID+`", "filters": {"a": 1}},
  {"database_id": "${MISSING_DB}", "filters": {"a": 1}}
]}`))
	require.NoError(t, err)

	_, err = Resolve(context.Background(), cfg, secrets.StaticProvider{})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, 1, vErr.Index)
	require.Equal(t, "database_id", vErr.Field)
	require.Contains(t, vErr.Error(), "MISSING_DB")
}

func TestResolveFailsOnEmptySubstitution(t *testing.T) {
	cfg, err := Load(writeFile(t, "rules.json", `{"databases": [{"database_id": "${EMPTY_DB}", "filters": {"a": 1}}]}`))
	require.NoError(t, err)

	_, err = Resolve(context.Background(), cfg, secrets.StaticProvider{"EMPTY_DB": ""})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "database_id", vErr.Field)
}

func TestResolveSubstitutesFilterPlaceholders(t *testing.T) {
	path := writeFile(t, "rules.json", `{"databases": [{
  "database_id": "`+dbID+`",
  "filters": {"and": [
    {"property": "Date", "date": {"before": "${CUTOFF}"}},
    {"property": "Score", "number": {"less_than": 10}}
  ]}
}]}`)

	cases := []struct {
		name     string
		provider secrets.StaticProvider
		expected string
		invalid  bool
	}{
		{
			name:     "resolved placeholder",
			provider: secrets.StaticProvider{"CUTOFF": "2024-01-01"},
			expected: `{"and":[{"date":{"before":"2024-01-01"},"property":"Date"},{"number":{"less_than":10},"property":"Score"}]}`,
		},
		{
			name:     "unresolved placeholder",
			provider: secrets.StaticProvider{},
			invalid:  true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)

			resolved, err := Resolve(context.Background(), cfg, c.provider)
			if c.invalid {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				require.Equal(t, 0, vErr.Index)
				require.Equal(t, "filters", vErr.Field)
				require.Contains(t, vErr.Error(), "CUTOFF")
				return
			}

			require.NoError(t, err)
			if got := string(resolved[0].Filters); got != c.expected {
				t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.expected, got)
			}
			require.Contains(t, string(cfg.Databases[0].Filters), "${CUTOFF}")
		})
	}
}

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		name     string
		id       string
		expected string
		invalid  bool
	}{
		{
			name:     "adds dashes to a bare id",
			id:       dbID,
			expected: "01234567-89ab-cdef-0123-456789abcdef",
		},
		{
			name:     "keeps a dashed id",
			id:       "01234567-89ab-cdef-0123-456789abcdef",
			expected: "01234567-89ab-cdef-0123-456789abcdef",
		},
		{
			name:     "strips surrounding and inner spaces",
			id:       " 01234567 89abcdef0123456789abcdef ",
			expected: "01234567-89ab-cdef-0123-456789abcdef",
		},
		{
			name:     "ignores misplaced dashes",
			id:       "0123456789a-bcdef0123-456789abcdef",
			expected: "01234567-89ab-cdef-0123-456789abcdef",
		},
		{
			name:    "rejects ids of the wrong length",
			id:      "0123",
			invalid: true,
		},
		{
			name:    "rejects non hexadecimal ids",
			id:      "zz23456789abcdef0123456789abcdef",
			invalid: true,
		},
		{
			name:    "rejects empty ids",
			id:      "  ",
			invalid: true,
		},
	}

	for _, c := range cases {
		got, err := NormalizeID(c.id)
		if c.invalid {
			if err == nil {
				t.Errorf("%v\n\tExpected an error but got %q instead", c.name, got)
			}
			continue
		}

		if err != nil {
			t.Errorf("%v\n\tunexpected error: %v", c.name, err)
		}
		if got != c.expected {
			t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.expected, got)
		}
	}
}

func TestAPIKey(t *testing.T) {
	cases := []struct {
		name     string
		provider secrets.Provider
		expected string
		err      error
	}{
		{
			name:     "accepts ntn_ keys",
			provider: secrets.StaticProvider{DefaultAPIKeyName: "ntn_abc"},
			expected: "ntn_abc",
		},
		{
			name:     "accepts secret_ keys and trims them",
			provider: secrets.StaticProvider{DefaultAPIKeyName: "  secret_abc\n"},
			expected: "secret_abc",
		},
		{
			name:     "rejects a missing key",
			provider: secrets.StaticProvider{},
			err:      ErrMissingAPIKey,
		},
		{
			name:     "rejects an empty key",
			provider: secrets.StaticProvider{DefaultAPIKeyName: " "},
			err:      ErrMissingAPIKey,
		},
		{
			name:     "rejects an unknown prefix",
			provider: secrets.StaticProvider{DefaultAPIKeyName: "sk_abc"},
			err:      ErrInvalidAPIKey,
		},
		{
			name:     "rejects embedded newlines",
			provider: secrets.StaticProvider{DefaultAPIKeyName: "ntn_abc\ndef"},
			err:      ErrInvalidAPIKey,
		},
	}

	for _, c := range cases {
		key, err := APIKey(context.Background(), c.provider, DefaultAPIKeyName)
		if c.err != nil {
			if !errors.Is(err, c.err) {
				t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.err, err)
			}
			continue
		}

		if err != nil {
			t.Errorf("%v\n\tunexpected error: %v", c.name, err)
		}
		if key != c.expected {
			t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.expected, key)
		}
	}
}

func TestDryRunFromEnv(t *testing.T) {
	for value, expected := range map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, " Yes ": true,
		"": false, "false": false, "0": false, "no": false, "on": false,
	} {
		if got := DryRunFromEnv(value); got != expected {
			t.Errorf("DryRunFromEnv(%q)\n\tExpected %v but got %v instead", value, expected, got)
		}
	}
}
