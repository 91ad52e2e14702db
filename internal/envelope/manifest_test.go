package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinManifestValidates(t *testing.T) {
	m := BuiltinManifest()
	assert.True(t, m.Admits("message_create"))
	assert.False(t, m.Admits("totally_unknown_event"))

	def, ok := m.Lookup("message_create")
	require.True(t, ok)
	assert.Equal(t, "channel", def.Scope)
	assert.GreaterOrEqual(t, def.SchemaVersion, 1)
}

func TestLoadManifestRejectsBadGrammar(t *testing.T) {
	_, err := LoadManifest([]byte(`[{"event_type":"Bad Type!","schema_version":1,"scope":"channel","lifecycle":"Active"}]`))
	assert.Error(t, err)
}

func TestLoadManifestRejectsDuplicate(t *testing.T) {
	raw := []byte(`[
		{"event_type":"ready","schema_version":1,"scope":"connection","lifecycle":"Active"},
		{"event_type":"ready","schema_version":1,"scope":"connection","lifecycle":"Active"}
	]`)
	_, err := LoadManifest(raw)
	assert.Error(t, err)
}

func TestLoadManifestRejectsActiveWithMigrationNote(t *testing.T) {
	raw := []byte(`[{"event_type":"ready","schema_version":1,"scope":"connection","lifecycle":"Active","migration_note":"nope"}]`)
	_, err := LoadManifest(raw)
	assert.Error(t, err)
}

func TestLoadManifestRejectsDeprecatedWithoutMigrationNote(t *testing.T) {
	raw := []byte(`[{"event_type":"ready","schema_version":1,"scope":"connection","lifecycle":"Deprecated"}]`)
	_, err := LoadManifest(raw)
	assert.Error(t, err)
}

func TestBuildRoundTrip(t *testing.T) {
	type payload struct {
		Foo string `json:"foo"`
	}
	built, err := Build("message_create", payload{Foo: "bar"})
	require.NoError(t, err)
	assert.Less(t, 0, len(built.PayloadString))

	ev, err := DecodeIngressEnvelope([]byte(built.PayloadString))
	require.NoError(t, err)
	assert.Equal(t, 1, ev.V)
	assert.Equal(t, "message_create", ev.T)
}

func TestDecodeIngressEnvelopeRejectsUnknownFields(t *testing.T) {
	_, err := DecodeIngressEnvelope([]byte(`{"v":1,"t":"ready","d":{},"extra":true}`))
	assert.Error(t, err)
}

func TestDecodeIngressEnvelopeRejectsWrongVersion(t *testing.T) {
	_, err := DecodeIngressEnvelope([]byte(`{"v":2,"t":"ready","d":{}}`))
	assert.Error(t, err)
}
