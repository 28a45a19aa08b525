package registry

import (
	"context"
	"errors"
	"fmt"

	"schemaregistry/internal/catalog"
	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/schema"
)

var (
	ErrIncompatible  = errors.New("registry: schema is not compatible with existing versions")
	ErrInvalidKind   = errors.New("registry: unknown schema kind")
	ErrSubjectLocked = errors.New("registry: subject is in READONLY mode")

	// ErrAlreadySoftDeleted is returned when a non-permanent delete is
	// requested for a version (or subject version) that is already
	// soft-deleted — soft delete is not idempotent, it is a one-way gate
	// toward the permanent delete.
	ErrAlreadySoftDeleted = errors.New("registry: version is already soft-deleted")
	// ErrNotSoftDeleted is returned when a permanent delete is requested
	// for a version (or any version of a subject) that has not first
	// been soft-deleted: hard delete can never be the first step.
	ErrNotSoftDeleted = errors.New("registry: version must be soft-deleted before it can be permanently deleted")
)

// RegisterInput is one registration request.
type RegisterInput struct {
	Subject    string
	Kind       schema.Kind
	Text       string
	References []schema.Reference
}

// RegisterResult is what the caller needs to report back: the
// (possibly reused) schema id and the version it was assigned under
// this subject.
type RegisterResult struct {
	ID      int
	Version int
}

// WriteNewSchema is C6: the registration pipeline. Exactly spec.md's
// steps — dedup against the subject's existing versions, compatibility
// check against the subject's check set, id assignment (reusing an id
// already interned for identical content from any subject), version
// assignment, append, then block for the read-your-writes barrier.
func (r *Registry) WriteNewSchema(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if masterURL, err := r.RequireMaster(ctx); err != nil {
		if errors.Is(err, ErrNotMaster) {
			return RegisterResult{}, fmt.Errorf("%w: master is %s", ErrNotMaster, masterURL)
		}
		return RegisterResult{}, err
	}

	if r.Catalog.SubjectMode(in.Subject) == kafkalog.ModeReadOnly {
		return RegisterResult{}, ErrSubjectLocked
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.awaitMasterReady(ctx, r.Catalog.Offset, r.Producer.Log.EndOffset); err != nil {
		return RegisterResult{}, err
	}

	typed, err := schema.Parse(in.Kind, in.Text, in.References, r.Catalog, schema.Validating)
	if err != nil {
		return RegisterResult{}, err
	}

	// Step 1: dedup against this subject's own history first —
	// re-registering byte-for-byte the same schema on the same subject
	// is idempotent and returns the existing (id, version) untouched.
	if existing, ok := r.findExistingVersion(in.Subject, typed); ok {
		r.Metrics.IncCounter("register_dedup", in.Subject)
		return RegisterResult{ID: existing.ID, Version: existing.Version}, nil
	}

	// Step 2: compatibility check, skipped entirely for NONE and for
	// subjects in IMPORT mode (bulk-loading a prior registry's history,
	// which by construction was already checked once).
	mode := r.Catalog.SubjectMode(in.Subject)
	level := r.Catalog.SubjectCompatibility(in.Subject)
	if level != schema.CompatNone && mode != kafkalog.ModeImport {
		checkSet, err := r.Catalog.CheckSet(in.Subject, level)
		if err != nil {
			return RegisterResult{}, err
		}
		for _, entry := range checkSet {
			oldTyped, err := r.Catalog.Typed(entry)
			if err != nil {
				continue // historical record that never parsed; nothing to check against
			}
			ok, cerr := oldTyped.CheckCompatibility(typed, level)
			if !ok {
				if cerr != nil {
					return RegisterResult{}, fmt.Errorf("%w: %v", ErrIncompatible, cerr)
				}
				return RegisterResult{}, ErrIncompatible
			}
		}
	}

	// Step 3: id assignment — reuse an id already interned for this
	// exact canonical content from any subject (invariant: the same
	// content never gets two distinct ids), else mint a fresh one.
	id, reused := r.Catalog.FindByCanonicalText(in.Kind, typed.Canonical)
	// The fast-match index drops entries on soft delete, so fall back to
	// scanning every known id (smallest first) for identical content.
	for candidate := 1; !reused && candidate < r.Catalog.NextGlobalID(); candidate++ {
		entry, err := r.Catalog.GetByID(candidate)
		if err != nil || entry.Kind != in.Kind {
			continue
		}
		if old, err := r.Catalog.Typed(entry); err == nil && old.Canonical == typed.Canonical {
			id, reused = candidate, true
		}
	}
	if !reused {
		id = r.Catalog.NextGlobalID()
	}

	// Step 4: version assignment.
	version := 1
	if latest, err := r.Catalog.GetLatestVersion(in.Subject, true); err == nil {
		version = latest.Version + 1
	}

	refWire := make([]kafkalog.ReferenceWire, len(in.References))
	for i, ref := range in.References {
		refWire[i] = kafkalog.ReferenceWire{Name: ref.Name, Subject: ref.Subject, Version: ref.Version}
	}

	key, err := kafkalog.NewSchemaKey(in.Subject, version, r.Catalog.SchemaKeyFormat())
	if err != nil {
		return RegisterResult{}, err
	}
	value, err := kafkalog.NewSchemaValue(kafkalog.SchemaValue{
		Subject:    in.Subject,
		Version:    version,
		ID:         id,
		Schema:     in.Text,
		SchemaType: string(in.Kind),
		References: refWire,
	})
	if err != nil {
		return RegisterResult{}, err
	}

	if _, err := r.Producer.Send(ctx, key, value); err != nil {
		return RegisterResult{}, fmt.Errorf("registry: append schema record: %w", err)
	}

	return RegisterResult{ID: id, Version: version}, nil
}

func (r *Registry) findExistingVersion(subject string, typed *schema.Typed) (*catalog.Entry, bool) {
	versions, err := r.Catalog.ListVersions(subject, false)
	if err != nil {
		return nil, false
	}
	for _, v := range versions {
		entry, err := r.Catalog.GetVersion(subject, v, false)
		if err != nil {
			continue
		}
		if entry.Kind != typed.Kind {
			continue
		}
		existingTyped, err := r.Catalog.Typed(entry)
		if err != nil {
			continue
		}
		if existingTyped.Canonical == typed.Canonical {
			return entry, true
		}
	}
	return nil, false
}

// SetConfig writes a CONFIG record for subject (or global, if subject
// is empty).
func (r *Registry) SetConfig(ctx context.Context, subject string, level schema.CompatibilityLevel) error {
	if !level.Valid() {
		return fmt.Errorf("registry: invalid compatibility level %q", level)
	}
	if masterURL, err := r.RequireMaster(ctx); err != nil {
		if errors.Is(err, ErrNotMaster) {
			return fmt.Errorf("%w: master is %s", ErrNotMaster, masterURL)
		}
		return err
	}
	key, err := kafkalog.NewConfigKey(subject)
	if err != nil {
		return err
	}
	value, err := kafkalog.NewConfigValue(string(level))
	if err != nil {
		return err
	}
	_, err = r.Producer.Send(ctx, key, value)
	return err
}

// SetMode writes a MODE record for subject (or global, if subject is
// empty).
func (r *Registry) SetMode(ctx context.Context, subject string, mode kafkalog.SubjectMode) error {
	if masterURL, err := r.RequireMaster(ctx); err != nil {
		if errors.Is(err, ErrNotMaster) {
			return fmt.Errorf("%w: master is %s", ErrNotMaster, masterURL)
		}
		return err
	}
	key, err := kafkalog.NewModeKey(subject)
	if err != nil {
		return err
	}
	value, err := kafkalog.NewModeValue(mode)
	if err != nil {
		return err
	}
	_, err = r.Producer.Send(ctx, key, value)
	return err
}

// DeleteSubject soft-deletes (or, if permanent, hard-deletes every
// version of) subject.
func (r *Registry) DeleteSubject(ctx context.Context, subject string, permanent bool) ([]int, error) {
	if masterURL, err := r.RequireMaster(ctx); err != nil {
		if errors.Is(err, ErrNotMaster) {
			return nil, fmt.Errorf("%w: master is %s", ErrNotMaster, masterURL)
		}
		return nil, err
	}

	versions, err := r.Catalog.ListVersions(subject, permanent)
	if err != nil {
		return nil, err
	}

	if permanent {
		// Every version must already be soft-deleted before the subject
		// can be permanently removed — a permanent delete is never the
		// first step.
		for _, v := range versions {
			entry, err := r.Catalog.GetVersion(subject, v, true)
			if err != nil {
				return nil, err
			}
			if !entry.Deleted {
				return nil, ErrNotSoftDeleted
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if permanent {
		for _, v := range versions {
			key, err := kafkalog.NewSchemaKey(subject, v, r.Catalog.SchemaKeyFormat())
			if err != nil {
				return nil, err
			}
			if _, err := r.Producer.Send(ctx, key, nil); err != nil {
				return nil, fmt.Errorf("registry: hard-delete %s v%d: %w", subject, v, err)
			}
		}
		return versions, nil
	}

	latest := 0
	if len(versions) > 0 {
		latest = versions[len(versions)-1]
	}
	key, err := kafkalog.NewDeleteSubjectKey(subject)
	if err != nil {
		return nil, err
	}
	value, err := kafkalog.NewDeleteSubjectValue(subject, latest)
	if err != nil {
		return nil, err
	}
	if _, err := r.Producer.Send(ctx, key, value); err != nil {
		return nil, fmt.Errorf("registry: delete subject %s: %w", subject, err)
	}
	return versions, nil
}

// DeleteVersion deletes a single (subject, version). By default this is
// a soft delete: a SCHEMA record carrying the same id/schema/type/
// references is re-emitted with Deleted set, so the version still
// resolves with includeDeleted; re-registering its exact content adds
// a new version under the same id and leaves this one deleted.
// permanent instead hard-deletes it with a
// tombstone, and is only accepted once the version is already
// soft-deleted — a version can never be hard-deleted directly.
func (r *Registry) DeleteVersion(ctx context.Context, subject string, version int, permanent bool) error {
	if masterURL, err := r.RequireMaster(ctx); err != nil {
		if errors.Is(err, ErrNotMaster) {
			return fmt.Errorf("%w: master is %s", ErrNotMaster, masterURL)
		}
		return err
	}
	entry, err := r.Catalog.GetVersion(subject, version, true)
	if err != nil {
		return err
	}
	if entry.Deleted && !permanent {
		return ErrAlreadySoftDeleted
	}
	if permanent && !entry.Deleted {
		return ErrNotSoftDeleted
	}

	key, err := kafkalog.NewSchemaKey(subject, version, r.Catalog.SchemaKeyFormat())
	if err != nil {
		return err
	}

	if permanent {
		_, err = r.Producer.Send(ctx, key, nil)
		return err
	}

	refWire := make([]kafkalog.ReferenceWire, len(entry.References))
	for i, ref := range entry.References {
		refWire[i] = kafkalog.ReferenceWire{Name: ref.Name, Subject: ref.Subject, Version: ref.Version}
	}
	value, err := kafkalog.NewSchemaValue(kafkalog.SchemaValue{
		Subject:    subject,
		Version:    version,
		ID:         entry.ID,
		Schema:     entry.Text,
		SchemaType: string(entry.Kind),
		References: refWire,
		Deleted:    true,
	})
	if err != nil {
		return err
	}
	_, err = r.Producer.Send(ctx, key, value)
	return err
}
