package envelope

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
)

//go:embed manifest.json
var builtinManifestJSON []byte

var eventTypePattern = regexp.MustCompile(`^[a-z0-9._]{1,64}$`)

// Lifecycle is the admission state of an event type in the manifest.
type Lifecycle string

const (
	Active     Lifecycle = "Active"
	Deprecated Lifecycle = "Deprecated"
)

// EventDef describes one admitted event_type.
type EventDef struct {
	EventType     string    `json:"event_type"`
	SchemaVersion int       `json:"schema_version"`
	Scope         string    `json:"scope"`
	Lifecycle     Lifecycle `json:"lifecycle"`
	MigrationNote string    `json:"migration_note,omitempty"`
}

// Manifest is the static, process-wide set of admitted emitted event types.
// Initialized once at process start (spec.md §9 "Global mutable state") and
// never mutated after LoadManifest returns.
type Manifest struct {
	events map[string]EventDef
}

// LoadManifest parses and validates raw, the embedded manifest by default
// (see BuiltinManifest). Validation is fatal: any rule failure returns an
// error the caller should treat as a startup failure, never a soft warning.
func LoadManifest(raw []byte) (*Manifest, error) {
	var defs []EventDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}

	events := make(map[string]EventDef, len(defs))
	for _, d := range defs {
		if !eventTypePattern.MatchString(d.EventType) {
			return nil, fmt.Errorf("manifest: event_type %q fails identifier grammar", d.EventType)
		}
		if d.SchemaVersion < 1 {
			return nil, fmt.Errorf("manifest: event_type %q has schema_version < 1", d.EventType)
		}
		if _, dup := events[d.EventType]; dup {
			return nil, fmt.Errorf("manifest: event_type %q appears more than once", d.EventType)
		}
		switch d.Lifecycle {
		case Active:
			if d.MigrationNote != "" {
				return nil, fmt.Errorf("manifest: active event_type %q carries a migration note", d.EventType)
			}
		case Deprecated:
			if d.MigrationNote == "" {
				return nil, fmt.Errorf("manifest: deprecated event_type %q has a blank migration note", d.EventType)
			}
		default:
			return nil, fmt.Errorf("manifest: event_type %q has unknown lifecycle %q", d.EventType, d.Lifecycle)
		}
		events[d.EventType] = d
	}

	return &Manifest{events: events}, nil
}

// BuiltinManifest loads the manifest embedded in this package. It panics on
// failure — a malformed built-in manifest is a build-time programming error,
// not a runtime condition.
func BuiltinManifest() *Manifest {
	m, err := LoadManifest(builtinManifestJSON)
	if err != nil {
		panic(fmt.Sprintf("envelope: builtin manifest invalid: %v", err))
	}
	return m
}

// Lookup returns the definition for eventType and whether it is admitted.
func (m *Manifest) Lookup(eventType string) (EventDef, bool) {
	d, ok := m.events[eventType]
	return d, ok
}

// Admits reports whether eventType is a member of the manifest, regardless
// of lifecycle (Deprecated events may still be emitted).
func (m *Manifest) Admits(eventType string) bool {
	_, ok := m.events[eventType]
	return ok
}
