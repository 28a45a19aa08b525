package registry

import (
	"schemaregistry/internal/catalog"
	"schemaregistry/internal/schema"
)

// SubjectVersionGet returns one (subject, version) entry for a numeric
// version; the highest live version is served by LatestVersion.
func (r *Registry) SubjectVersionGet(subject string, version int, includeDeleted bool) (*catalog.Entry, error) {
	return r.Catalog.GetVersion(subject, version, includeDeleted)
}

func (r *Registry) LatestVersion(subject string, includeDeleted bool) (*catalog.Entry, error) {
	return r.Catalog.GetLatestVersion(subject, includeDeleted)
}

func (r *Registry) ListVersions(subject string, includeDeleted bool) ([]int, error) {
	return r.Catalog.ListVersions(subject, includeDeleted)
}

func (r *Registry) ListSubjects(includeDeleted bool) []string {
	return r.Catalog.ListSubjects(includeDeleted)
}

func (r *Registry) GetByID(id int) (*catalog.Entry, []string, error) {
	entry, err := r.Catalog.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	return entry, r.Catalog.SubjectsUsingID(id), nil
}

// GetSchemasList reproduces get_schemas_list(latest_only=...)'s
// single-vs-list asymmetry from the original implementation verbatim
// (SPEC_FULL Open Question 2): when latestOnly is true the return is a
// single entry, never a one-element list, so callers can't paper over
// the original's inconsistency by accident.
func (r *Registry) GetSchemasList(subject string, latestOnly, includeDeleted bool) (single *catalog.Entry, list []*catalog.Entry, err error) {
	versions, err := r.Catalog.ListVersions(subject, includeDeleted)
	if err != nil {
		return nil, nil, err
	}
	if latestOnly {
		if len(versions) == 0 {
			return nil, nil, catalog.ErrVersionNotFound
		}
		e, err := r.Catalog.GetVersion(subject, versions[len(versions)-1], includeDeleted)
		if err != nil {
			return nil, nil, err
		}
		return e, nil, nil
	}
	out := make([]*catalog.Entry, 0, len(versions))
	for _, v := range versions {
		e, err := r.Catalog.GetVersion(subject, v, includeDeleted)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return nil, out, nil
}

// CheckCompatibility runs a would-be registration's compatibility check
// without appending anything, for the /compatibility/... endpoints.
func (r *Registry) CheckCompatibility(subject string, kind schema.Kind, text string, refs []schema.Reference, level schema.CompatibilityLevel) (bool, error) {
	typed, err := schema.Parse(kind, text, refs, r.Catalog, schema.Validating)
	if err != nil {
		return false, err
	}
	if level == "" {
		level = r.Catalog.SubjectCompatibility(subject)
	}
	if level == schema.CompatNone {
		return true, nil
	}
	checkSet, err := r.Catalog.CheckSet(subject, level)
	if err != nil {
		return false, err
	}
	for _, entry := range checkSet {
		oldTyped, err := r.Catalog.Typed(entry)
		if err != nil {
			continue
		}
		ok, _ := oldTyped.CheckCompatibility(typed, level)
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Registry) GlobalCompatibility() schema.CompatibilityLevel {
	return r.Catalog.GlobalCompatibility()
}

func (r *Registry) SubjectCompatibility(subject string) schema.CompatibilityLevel {
	return r.Catalog.SubjectCompatibility(subject)
}

func (r *Registry) SubjectMode(subject string) string {
	return string(r.Catalog.SubjectMode(subject))
}

// Ready reports whether this replica's catalog has caught up to the
// log's end offset, per the projector's own readiness tracking
// (spec: ready once offset >= end_offset-1). A replica that has only
// folded its first few records but is still far behind the partition
// tail must never report ready.
func (r *Registry) Ready() bool {
	if r.Readiness == nil {
		return false
	}
	return r.Readiness.Ready()
}
