package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaregistry/internal/catalog"
	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/offsetwatch"
	"schemaregistry/internal/projector"
	"schemaregistry/internal/schema"

	_ "schemaregistry/internal/schema/avro"
)

const userV1 = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"}]}`
const userV2Compatible = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"},{"name":"age","type":["null","int"],"default":null}]}`
const userV2Incompatible = `{"type":"record","name":"User","fields":[{"name":"name","type":"string"},{"name":"age","type":"int"}]}`

// harness wires a MemoryBroker through a projector into a Registry,
// the same shape cmd/schema-registry/main.go assembles against a real
// Kafka log, so the registration pipeline and the read-your-writes
// barrier run against a genuine (if in-process) replay loop rather
// than a mocked catalog.
type harness struct {
	reg   *Registry
	cat   *catalog.Catalog
	proj  *projector.Projector
	stop  context.CancelFunc
	log   *kafkalog.MemoryLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	broker := kafkalog.NewMemoryBroker()
	log := broker.NewLog()
	cat := catalog.New()
	watcher := offsetwatch.New()
	prod := kafkalog.NewProducer(log, watcher)
	prod.BarrierTimeout = 5 * time.Second
	proj := projector.New(log, cat, watcher, nil)
	reg := New(cat, prod, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go proj.Run(ctx)

	h := &harness{reg: reg, cat: cat, proj: proj, stop: cancel, log: log}
	t.Cleanup(cancel)
	return h
}

func TestRegistry_RegisterThenReadIsImmediatelyVisible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ID)
	assert.Equal(t, 1, result.Version)

	entry, err := h.reg.LatestVersion("s1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ID)
}

func TestRegistry_ReRegisteringIdenticalSchemaIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	second, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)
	assert.Equal(t, first, second, "dedup must return the existing (id, version), not mint a new one")

	versions, err := h.reg.ListVersions("s1", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}

func TestRegistry_SameContentAcrossSubjectsReusesID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	r2, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s2", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	assert.Equal(t, r1.ID, r2.ID, "identical canonical content interns to the same global id across subjects")
	assert.Equal(t, 1, r2.Version, "a new subject still starts its own version counter at 1")
}

func TestRegistry_IncompatibleSchemaIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	_, err = h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV2Incompatible})
	assert.ErrorIs(t, err, ErrIncompatible)

	versions, err := h.reg.ListVersions("s1", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions, "a rejected registration must not append a new version")
}

func TestRegistry_CompatibleSchemaGetsNextVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	result, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV2Compatible})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Version)
}

func TestRegistry_DeleteSubjectSoftThenPermanent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	_, err = h.reg.DeleteSubject(ctx, "s1", false)
	require.NoError(t, err)
	assert.NotContains(t, h.reg.ListSubjects(false), "s1")

	_, err = h.reg.DeleteSubject(ctx, "s1", true)
	require.NoError(t, err)
	assert.NotContains(t, h.reg.ListSubjects(true), "s1")
}

func TestRegistry_DeleteSubjectPermanentWithoutSoftDeleteIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	_, err = h.reg.DeleteSubject(ctx, "s1", true)
	assert.ErrorIs(t, err, ErrNotSoftDeleted)
	assert.Contains(t, h.reg.ListSubjects(false), "s1", "rejected permanent delete must not touch live state")
}

// TestRegistry_DeleteVersionDefaultsToSoftDelete is S4: the default
// DELETE of a single version must be a soft delete — the version still
// resolves with includeDeleted and reports deleted, it is not simply
// gone.
func TestRegistry_DeleteVersionDefaultsToSoftDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	require.NoError(t, h.reg.DeleteVersion(ctx, "s1", 1, false))

	_, err = h.reg.SubjectVersionGet("s1", 1, false)
	assert.ErrorIs(t, err, catalog.ErrSubjectNotFound)

	entry, err := h.reg.SubjectVersionGet("s1", 1, true)
	require.NoError(t, err)
	assert.True(t, entry.Deleted)
	assert.Equal(t, result.ID, entry.ID, "soft delete must carry the same id forward")
	assert.Equal(t, userV1, entry.Text, "soft delete must carry the same schema text forward")
}

func TestRegistry_DeleteVersionSoftThenPermanent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	// Permanent delete is rejected until the version has been soft-deleted.
	err = h.reg.DeleteVersion(ctx, "s1", 1, true)
	assert.ErrorIs(t, err, ErrNotSoftDeleted)

	require.NoError(t, h.reg.DeleteVersion(ctx, "s1", 1, false))

	// Soft-deleting an already soft-deleted version is rejected too.
	err = h.reg.DeleteVersion(ctx, "s1", 1, false)
	assert.ErrorIs(t, err, ErrAlreadySoftDeleted)

	require.NoError(t, h.reg.DeleteVersion(ctx, "s1", 1, true))

	_, err = h.reg.SubjectVersionGet("s1", 1, true)
	assert.ErrorIs(t, err, catalog.ErrSubjectNotFound)
}

func TestRegistry_SetConfigAndModeRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.reg.SetConfig(ctx, "s1", schema.CompatNone))
	assert.Equal(t, schema.CompatNone, h.reg.SubjectCompatibility("s1"))

	require.NoError(t, h.reg.SetMode(ctx, "s1", kafkalog.ModeReadOnly))
	assert.Equal(t, string(kafkalog.ModeReadOnly), h.reg.SubjectMode("s1"))

	_, err := h.reg.WriteNewSchema(ctx, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	assert.ErrorIs(t, err, ErrSubjectLocked)
}

// TestRegistry_TwoReplicasConvergeOnSameDigest exercises S5: two
// independent catalogs, each fed by its own projector reading its own
// cursor over the same MemoryBroker, must fold to an identical digest
// once both have caught up — the same guarantee two real consumer
// group members reading the same compacted partition rely on.
func TestRegistry_TwoReplicasConvergeOnSameDigest(t *testing.T) {
	broker := kafkalog.NewMemoryBroker()

	logA := broker.NewLog()
	catA := catalog.New()
	watcherA := offsetwatch.New()
	prodA := kafkalog.NewProducer(logA, watcherA)
	prodA.BarrierTimeout = 5 * time.Second
	projA := projector.New(logA, catA, watcherA, nil)
	regA := New(catA, prodA, nil, nil)

	logB := broker.NewLog()
	catB := catalog.New()
	watcherB := offsetwatch.New()
	projB := projector.New(logB, catB, watcherB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go projA.Run(ctx)
	go projB.Run(ctx)

	ctxReg := context.Background()
	_, err := regA.WriteNewSchema(ctxReg, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)
	_, err = regA.WriteNewSchema(ctxReg, RegisterInput{Subject: "s1", Kind: schema.KindAvro, Text: userV2Compatible})
	require.NoError(t, err)
	_, err = regA.WriteNewSchema(ctxReg, RegisterInput{Subject: "s2", Kind: schema.KindAvro, Text: userV1})
	require.NoError(t, err)

	// Replica B never produced anything itself, so it has no barrier to
	// wait on; poll until it has folded the same number of records A has.
	require.Eventually(t, func() bool {
		return catB.Offset() == catA.Offset()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, catA.Digest(), catB.Digest())
}
