package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Action kinds a manifest can declare.
const (
	KindRespond = "respond"
	KindPlugin  = "plugin"
)

// Manifest is one action definition file.
type Manifest struct {
	MinServerVersion string       `json:"min_server_version,omitempty" yaml:"min_server_version,omitempty"`
	Actions          []ActionSpec `json:"actions" yaml:"actions"`
}

// ActionSpec declares one action in a manifest.
type ActionSpec struct {
	Name          string    `json:"name" yaml:"name"`
	Kind          string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	RequiredSlots []string  `json:"required_slots,omitempty" yaml:"required_slots,omitempty"`
	Responses     []Message `json:"responses,omitempty" yaml:"responses,omitempty"`
	Events        []Event   `json:"events,omitempty" yaml:"events,omitempty"`
	Command       string    `json:"command,omitempty" yaml:"command,omitempty"`
	Args          []string  `json:"args,omitempty" yaml:"args,omitempty"`
}

var manifestSchema = gojsonschema.NewStringLoader(ManifestSchema)

// LoadManifest reads, schema-validates and decodes a .json, .yaml or .yml
// manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return ParseManifest(data, filepath.Ext(path))
}

// ParseManifest decodes manifest data. ext selects the format and defaults
// to JSON.
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var (
		doc      any
		manifest Manifest
	)

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
		if err := validateManifestSchema(gojsonschema.NewGoLoader(doc)); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to decode manifest YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
		}
		if err := validateManifestSchema(gojsonschema.NewBytesLoader(data)); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to decode manifest JSON: %w", err)
		}
	}

	for i := range manifest.Actions {
		if manifest.Actions[i].Kind == "" {
			manifest.Actions[i].Kind = KindRespond
		}
	}

	if manifest.MinServerVersion != "" {
		if _, err := semver.NewConstraint(manifest.MinServerVersion); err != nil {
			return nil, fmt.Errorf("invalid min_server_version %q: %w", manifest.MinServerVersion, err)
		}
	}

	return &manifest, nil
}

func validateManifestSchema(document gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(manifestSchema, document)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, err := range result.Errors() {
			msgs = append(msgs, err.String())
		}
		return fmt.Errorf("manifest schema validation failed: %s", strings.Join(msgs, "; "))
	}

	return nil
}

type cachedManifest struct {
	modTime time.Time
	size    int64
	actions []Action
}

// ManifestSource loads actions from the manifest files in one directory.
// Files are only re-parsed when their size or modification time changes.
type ManifestSource struct {
	dir           string
	serverVersion *semver.Version
	plugins       *pluginClients
	logger        zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedManifest
}

// NewManifestSource creates a source for dir. serverVersion is matched
// against each manifest's min_server_version.
func NewManifestSource(dir, serverVersion string, logger zerolog.Logger) (*ManifestSource, error) {
	version, err := semver.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid server version %q: %w", serverVersion, err)
	}

	logger = logger.With().Str("component", "manifest-source").Str("dir", dir).Logger()

	return &ManifestSource{
		dir:           dir,
		serverVersion: version,
		plugins:       newPluginClients(logger),
		logger:        logger,
		cache:         make(map[string]cachedManifest),
	}, nil
}

// Name identifies the source in logs and errors.
func (s *ManifestSource) Name() string {
	return "manifests:" + s.dir
}

// Dir returns the watched directory.
func (s *ManifestSource) Dir() string {
	return s.dir
}

// Load returns the actions declared by every manifest in the directory. A
// missing directory yields no actions.
func (s *ManifestSource) Load(ctx context.Context) ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Msg("Actions directory does not exist")
			s.cache = make(map[string]cachedManifest)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read actions directory: %w", err)
	}

	next := make(map[string]cachedManifest)
	var actions []Action

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isManifestFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		cached, ok := s.cache[path]
		if !ok || !cached.modTime.Equal(info.ModTime()) || cached.size != info.Size() {
			loaded, err := s.loadFile(path)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Name(), err)
			}
			cached = cachedManifest{modTime: info.ModTime(), size: info.Size(), actions: loaded}
			s.logger.Debug().Str("file", entry.Name()).Int("actions", len(loaded)).Msg("Loaded manifest")
		}

		next[path] = cached
		actions = append(actions, cached.actions...)
	}

	s.cache = next
	s.plugins.retain(pluginCommands(actions))

	return actions, nil
}

func (s *ManifestSource) loadFile(path string) ([]Action, error) {
	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}

	if manifest.MinServerVersion != "" {
		constraint, _ := semver.NewConstraint(manifest.MinServerVersion)
		if !constraint.Check(s.serverVersion) {
			s.logger.Warn().
				Str("file", filepath.Base(path)).
				Str("constraint", manifest.MinServerVersion).
				Str("server_version", s.serverVersion.String()).
				Msg("Skipping manifest incompatible with server version")
			return nil, nil
		}
	}

	base := filepath.Dir(path)
	actions := make([]Action, 0, len(manifest.Actions))
	for _, spec := range manifest.Actions {
		switch spec.Kind {
		case KindPlugin:
			command := spec.Command
			if !filepath.IsAbs(command) {
				command = filepath.Join(base, command)
			}
			actions = append(actions, &pluginAction{
				name:    spec.Name,
				command: command,
				args:    spec.Args,
				clients: s.plugins,
			})
		default:
			actions = append(actions, &respondAction{spec: spec})
		}
	}

	return actions, nil
}

// Close stops every plugin process started by this source.
func (s *ManifestSource) Close() error {
	s.plugins.closeAll()
	return nil
}

func isManifestFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func pluginCommands(actions []Action) map[string]bool {
	commands := make(map[string]bool)
	for _, action := range actions {
		if pa, ok := action.(*pluginAction); ok {
			commands[pa.command] = true
		}
	}
	return commands
}

// respondAction utters fixed responses and returns fixed events. Slot
// values are substituted into "{slot}" placeholders in response text.
type respondAction struct {
	spec ActionSpec
}

func (a *respondAction) Name() string {
	return a.spec.Name
}

func (a *respondAction) Run(ctx context.Context, dispatcher *CollectingDispatcher, tracker Tracker, domain Domain) ([]Event, error) {
	for _, slot := range a.spec.RequiredSlots {
		if _, ok := tracker.GetSlot(slot); !ok {
			return nil, Reject(a.spec.Name, fmt.Sprintf("Required slot '%s' is not set.", slot))
		}
	}

	fill := slotReplacer(tracker.Slots())
	for _, response := range a.spec.Responses {
		msg := make(Message, len(response))
		for k, v := range response {
			if text, ok := v.(string); ok && k == "text" {
				v = fill.Replace(text)
			}
			msg[k] = v
		}
		dispatcher.UtterMessage(msg)
	}

	events := make([]Event, 0, len(a.spec.Events))
	for _, event := range a.spec.Events {
		cp := make(Event, len(event))
		for k, v := range event {
			cp[k] = v
		}
		events = append(events, cp)
	}

	return events, nil
}

func slotReplacer(slots map[string]any) *strings.Replacer {
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		if slots[name] == nil {
			continue
		}
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(slots[name]))
	}
	return strings.NewReplacer(pairs...)
}
