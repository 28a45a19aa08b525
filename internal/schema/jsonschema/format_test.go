package jsonschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaregistry/internal/schema"
)

const schemaV1 = `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`
const schemaV2AddOptional = `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer"}},"required":["name"]}`
const schemaV2NewRequired = `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer"}},"required":["name","age"]}`

func TestFormat_ValidateRejectsInvalidJSON(t *testing.T) {
	f := &Format{}
	assert.Error(t, f.Validate(`{"invalid"`, schema.Lenient, nil))
}

func TestFormat_ValidatingRequiresSchemaKeyword(t *testing.T) {
	f := &Format{}
	noSchemaKeyword := `{"type":"object"}`
	assert.Error(t, f.Validate(noSchemaKeyword, schema.Validating, nil))
	assert.NoError(t, f.Validate(noSchemaKeyword, schema.Lenient, nil))
}

func TestFormat_AddingOptionalPropertyIsBackwardCompatible(t *testing.T) {
	f := &Format{}
	ok, err := f.CheckCompatibility(schemaV1, schemaV2AddOptional, nil, nil, schema.CompatBackward)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFormat_AddingNewRequiredPropertyBreaksForwardCompatibility(t *testing.T) {
	f := &Format{}
	ok, _ := f.CheckCompatibility(schemaV1, schemaV2NewRequired, nil, nil, schema.CompatForward)
	assert.False(t, ok)
}

func TestFormat_CanonicalizeNormalizesFormatting(t *testing.T) {
	f := &Format{}
	a, err := f.Canonicalize(schemaV1, nil)
	require.NoError(t, err)
	b, err := f.Canonicalize("  "+schemaV1+"\n", nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
