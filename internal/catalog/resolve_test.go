package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/schema"
)

func mustSchemaRecordWithRefs(t *testing.T, offset int64, subject string, version, id int, text string, refs []kafkalog.ReferenceWire) kafkalog.Record {
	t.Helper()
	key, err := kafkalog.NewSchemaKey(subject, version, kafkalog.FormatCanonical)
	require.NoError(t, err)
	val, err := kafkalog.NewSchemaValue(kafkalog.SchemaValue{
		Subject: subject, Version: version, ID: id, Schema: text, SchemaType: "AVRO", References: refs,
	})
	require.NoError(t, err)
	return kafkalog.Record{Offset: offset, Key: key, Value: val}
}

func TestCatalog_ResolveFollowsReference(t *testing.T) {
	c := New()
	require.NoError(t, c.Apply(mustSchemaRecord(t, 0, "base", 1, 1, avroSchema1)))

	typed, err := c.Resolve(schema.Reference{Name: "base.avsc", Subject: "base", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, schema.KindAvro, typed.Kind)
}

func TestCatalog_ResolveMissingReference(t *testing.T) {
	c := New()
	_, err := c.Resolve(schema.Reference{Name: "missing.avsc", Subject: "nope", Version: 1})
	assert.Error(t, err)
}

func TestCatalog_ParseMemoizedAcrossCalls(t *testing.T) {
	c := New()
	require.NoError(t, c.Apply(mustSchemaRecord(t, 0, "s1", 1, 1, avroSchema1)))

	entry, err := c.GetVersion("s1", 1, false)
	require.NoError(t, err)
	assert.NotNil(t, entry.parsed, "the fold already parsed the entry to intern its canonical text")

	typed, err := c.Typed(entry)
	require.NoError(t, err)
	assert.Equal(t, schema.KindAvro, typed.Kind)

	again, err := c.Typed(entry)
	require.NoError(t, err)
	assert.Same(t, typed, again, "second call must reuse the memoized parse")
}

func TestCatalog_CycleIsRejectedNotInfiniteLoop(t *testing.T) {
	c := New()
	// Hand-construct a cycle: v1 of "a" references "b" v1, which
	// references "a" v1 back. Neither can parse cleanly as Avro with an
	// unresolved self-reference, but the point here is that resolution
	// terminates with an error rather than recursing forever.
	require.NoError(t, c.Apply(mustSchemaRecordWithRefs(t, 0, "a", 1, 1, avroSchema1,
		[]kafkalog.ReferenceWire{{Name: "b.avsc", Subject: "b", Version: 1}})))
	require.NoError(t, c.Apply(mustSchemaRecordWithRefs(t, 1, "b", 1, 2, avroSchema1,
		[]kafkalog.ReferenceWire{{Name: "a.avsc", Subject: "a", Version: 1}})))

	entryA, err := c.GetVersion("a", 1, false)
	require.NoError(t, err)

	_, err = c.Typed(entryA)
	assert.Error(t, err)
}
