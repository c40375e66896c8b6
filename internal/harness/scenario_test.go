package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "library_cascade.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "library-cascade", s.Name)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "library.yaml"), s.Schema)
	assert.Equal(t, []string{"lib"}, s.Domains)
	require.Len(t, s.Steps, 7)
	assert.Equal(t, OpSession, s.Steps[0].Op)
	require.Len(t, s.Steps[0].Steps, 2)
	assert.Equal(t, "Central", s.Steps[0].Steps[1].Value)
	assert.Equal(t, "duplicate_element", s.Steps[6].ExpectError)
	assert.Len(t, s.Assertions, 9)
}

func TestLoadScenario_AcceptFlag(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "property_rollback.yaml"))
	require.NoError(t, err)
	require.NotNil(t, s.Steps[1].Accept)
	assert.False(t, *s.Steps[1].Accept)
	assert.Nil(t, s.Steps[0].Accept)
	assert.Equal(t, 1969, s.Steps[1].Steps[1].Value)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: d\ndomains: [a]\nstep: []\n",
			want:    "field step not found",
		},
		{
			name:    "missing name",
			content: "description: d\ndomains: [a]\nsteps: [{op: remove, id: \"a:1\"}]\n",
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\ndomains: [a]\nsteps: [{op: remove, id: \"a:1\"}]\n",
			want:    "description is required",
		},
		{
			name:    "missing domains",
			content: "name: x\ndescription: d\nsteps: [{op: remove, id: \"a:1\"}]\n",
			want:    "domains list is required",
		},
		{
			name:    "missing steps",
			content: "name: x\ndescription: d\ndomains: [a]\n",
			want:    "steps list is required",
		},
		{
			name:    "missing schema",
			content: "name: x\ndescription: d\nschema: nope.yaml\ndomains: [a]\nsteps: [{op: remove, id: \"a:1\"}]\n",
			want:    "schema not found",
		},
		{
			name:    "unknown op",
			content: "name: x\ndescription: d\ndomains: [a]\nsteps: [{op: explode}]\n",
			want:    `steps[0]: unknown op "explode"`,
		},
		{
			name:    "create without schema",
			content: "name: x\ndescription: d\ndomains: [a]\nsteps: [{op: create, domain: a}]\n",
			want:    "domain and schema are required for create",
		},
		{
			name:    "nested step error",
			content: "name: x\ndescription: d\ndomains: [a]\nsteps: [{op: session, steps: [{op: set, id: \"a:1\"}]}]\n",
			want:    "steps[0].steps[0]: id and property are required for set",
		},
		{
			name:    "unknown expect_error",
			content: "name: x\ndescription: d\ndomains: [a]\nsteps: [{op: remove, id: \"a:1\", expect_error: oops}]\n",
			want:    `unknown expect_error "oops"`,
		},
		{
			name:    "unknown event kind",
			content: "name: x\ndescription: d\ndomains: [a]\nsteps: [{op: remove, id: \"a:1\"}]\nassertions: [{type: event_count, kind: Boom}]\n",
			want:    `unknown event kind "Boom"`,
		},
		{
			name:    "unknown assertion",
			content: "name: x\ndescription: d\ndomains: [a]\nsteps: [{op: remove, id: \"a:1\"}]\nassertions: [{type: vibes}]\n",
			want:    `unknown assertion type "vibes"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schemas")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "s.yaml"), []byte("schemas: [{id: Book}]\n"), 0o644))

	path := writeScenario(t, dir, "name: x\ndescription: d\nschema: s.yaml\ndomains: [a]\nsteps: [{op: create, domain: a, schema: Book}]\n")
	s, err := LoadScenarioWithBasePath(path, schemaDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(schemaDir, "s.yaml"), s.Schema)
}
