package kafkalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey_CanonicalFormat(t *testing.T) {
	raw, err := NewSchemaKey("my-subject", 3, FormatCanonical)
	require.NoError(t, err)

	key, err := ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeSchema, key.Type)
	assert.Equal(t, "my-subject", key.Subject)
	assert.Equal(t, 3, key.Version)
	assert.Equal(t, FormatCanonical, key.Format)
}

func TestParseKey_DeprecatedFormat(t *testing.T) {
	raw, err := NewSchemaKey("my-subject", 1, FormatDeprecated)
	require.NoError(t, err)

	key, err := ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeSchema, key.Type)
	assert.Equal(t, "my-subject", key.Subject)
	assert.Equal(t, 1, key.Version)
	assert.Equal(t, FormatDeprecated, key.Format)
}

func TestParseKey_ConfigAndMode(t *testing.T) {
	raw, err := NewConfigKey("subj")
	require.NoError(t, err)
	key, err := ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeConfig, key.Type)
	assert.Equal(t, "subj", key.Subject)

	raw, err = NewModeKey("")
	require.NoError(t, err)
	key, err = ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeMode, key.Type)
	assert.Equal(t, "", key.Subject)
}

func TestParseKey_Unrecognized(t *testing.T) {
	_, err := ParseKey([]byte(`{"foo":"bar"}`))
	assert.Error(t, err)
}

func TestParseSchemaValue_Tombstone(t *testing.T) {
	v, err := ParseSchemaValue(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseSchemaValue([]byte{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseSchemaValue_DefaultsSchemaType(t *testing.T) {
	raw, err := NewSchemaValue(SchemaValue{Subject: "s", Version: 1, ID: 1, Schema: `"string"`})
	require.NoError(t, err)
	v, err := ParseSchemaValue(raw)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "AVRO", v.SchemaType)
}

func TestParseModeValue(t *testing.T) {
	raw, err := NewModeValue(ModeReadOnly)
	require.NoError(t, err)
	v, err := ParseModeValue(raw)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, ModeReadOnly, v.Mode)
}

func TestParseDeleteSubjectValue(t *testing.T) {
	raw, err := NewDeleteSubjectValue("s", 4)
	require.NoError(t, err)
	v, err := ParseDeleteSubjectValue(raw)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "s", v.Subject)
	assert.Equal(t, 4, v.Version)
}
