package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetYAML = `
actions:
  - name: utter_greet
    responses:
      - text: "Hello {name}!"
    events:
      - event: slot
        name: greeted
        value: true
  - name: validate_booking
    required_slots: [date]
`

const byeJSON = `{
  "min_server_version": ">= 3.0, < 4.0",
  "actions": [
    {"name": "utter_bye", "kind": "respond", "responses": [{"text": "Bye"}]}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestSource(t *testing.T, dir string) *ManifestSource {
	t.Helper()
	src, err := NewManifestSource(dir, "3.10.0", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func actionNames(actions []Action) []string {
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.Name())
	}
	return names
}

func TestParseManifest(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		m, err := ParseManifest([]byte(greetYAML), ".yaml")
		require.NoError(t, err)
		require.Len(t, m.Actions, 2)
		assert.Equal(t, "utter_greet", m.Actions[0].Name)
		assert.Equal(t, KindRespond, m.Actions[0].Kind)
		assert.Equal(t, []string{"date"}, m.Actions[1].RequiredSlots)
	})

	t.Run("json", func(t *testing.T) {
		m, err := ParseManifest([]byte(byeJSON), ".json")
		require.NoError(t, err)
		assert.Equal(t, ">= 3.0, < 4.0", m.MinServerVersion)
		assert.Equal(t, "Bye", m.Actions[0].Responses[0]["text"])
	})

	tests := []struct {
		name    string
		data    string
		ext     string
		wantErr string
	}{
		{"malformed json", `{"actions": [`, ".json", "failed to parse manifest JSON"},
		{"malformed yaml", "actions: [\n  - name: a\n  bad", ".yml", "failed to parse manifest YAML"},
		{"missing actions", `{}`, ".json", "schema validation failed"},
		{"unknown kind", `{"actions": [{"name": "a", "kind": "shell"}]}`, ".json", "schema validation failed"},
		{"bad name", `{"actions": [{"name": "has space"}]}`, ".json", "schema validation failed"},
		{"plugin without command", `{"actions": [{"name": "a", "kind": "plugin"}]}`, ".json", "schema validation failed"},
		{"unknown field", `{"actions": [], "extra": 1}`, ".json", "schema validation failed"},
		{"event without type", `{"actions": [{"name": "a", "events": [{"name": "x"}]}]}`, ".json", "schema validation failed"},
		{"bad constraint", `{"min_server_version": "not a version", "actions": []}`, ".json", "invalid min_server_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data), tt.ext)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManifestSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetYAML)
	writeFile(t, dir, "bye.json", byeJSON)
	writeFile(t, dir, "README.md", "not a manifest")
	writeFile(t, dir, ".hidden.json", `{"actions": [{"name": "hidden"}]}`)

	src := newTestSource(t, dir)
	actions, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"utter_greet", "validate_booking", "utter_bye"}, actionNames(actions))
}

func TestManifestSource_MissingDir(t *testing.T) {
	src := newTestSource(t, filepath.Join(t.TempDir(), "nope"))

	actions, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestManifestSource_InvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"actions": [{"kind": "respond"}]}`)

	src := newTestSource(t, dir)
	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestManifestSource_ServerVersionConstraint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "future.json", `{"min_server_version": ">= 4.0", "actions": [{"name": "future"}]}`)
	writeFile(t, dir, "now.json", `{"min_server_version": "~3.10", "actions": [{"name": "now"}]}`)

	src := newTestSource(t, dir)
	actions, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"now"}, actionNames(actions))
}

func TestManifestSource_ReparsesOnlyChangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.yaml", greetYAML)
	writeFile(t, dir, "bye.json", byeJSON)

	src := newTestSource(t, dir)
	first, err := src.Load(context.Background())
	require.NoError(t, err)

	second, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Same(t, first[i], second[i], "unchanged files reuse cached actions")
	}

	require.NoError(t, os.WriteFile(path, []byte("actions:\n  - name: utter_hi\n"), 0644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"utter_bye", "utter_hi"}, actionNames(third))
}

func TestManifestSource_RemovedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.yaml", greetYAML)

	src := newTestSource(t, dir)
	actions, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, actions, 2)

	require.NoError(t, os.Remove(path))
	actions, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestNewManifestSource_InvalidVersion(t *testing.T) {
	_, err := NewManifestSource(t.TempDir(), "three", zerolog.Nop())
	assert.Error(t, err)
}

func TestRespondAction(t *testing.T) {
	m, err := ParseManifest([]byte(greetYAML), ".yaml")
	require.NoError(t, err)

	greet := &respondAction{spec: m.Actions[0]}
	d := NewCollectingDispatcher()
	events, err := greet.Run(context.Background(), d, NewTracker(map[string]any{
		"slots": map[string]any{"name": "Ada"},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []Message{{"text": "Hello Ada!"}}, d.Messages())
	require.Len(t, events, 1)
	assert.Equal(t, "slot", events[0]["event"])
	assert.Equal(t, true, events[0]["value"])

	events[0]["value"] = false
	again, err := greet.Run(context.Background(), NewCollectingDispatcher(), NewTracker(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, true, again[0]["value"], "returned events must not alias the manifest")

	validate := &respondAction{spec: m.Actions[1]}
	_, err = validate.Run(context.Background(), NewCollectingDispatcher(), NewTracker(nil), nil)
	rej, ok := IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, "validate_booking", rej.ActionName)
	assert.Equal(t, "Required slot 'date' is not set.", rej.Message)
}

func TestManifestSource_WithRegistryReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetYAML)

	reg := NewRegistry(zerolog.Nop())
	reg.AddSource(newTestSource(t, dir))
	require.NoError(t, reg.Reload(context.Background()))
	assert.Equal(t, []string{"utter_greet", "validate_booking"}, reg.Names())

	writeFile(t, dir, "bye.json", byeJSON)
	require.NoError(t, reg.Reload(context.Background()))
	assert.Equal(t, []string{"utter_bye", "utter_greet", "validate_booking"}, reg.Names())

	writeFile(t, dir, "zz_broken.json", `{`)
	require.Error(t, reg.Reload(context.Background()))
	assert.Equal(t, []string{"utter_bye", "utter_greet", "validate_booking"}, reg.Names())
}
