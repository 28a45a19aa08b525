package catalog

import (
	"fmt"
	"sort"

	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/schema"
)

var (
	ErrSubjectNotFound = fmt.Errorf("catalog: subject not found")
	ErrVersionNotFound = fmt.Errorf("catalog: version not found")
	ErrIDNotFound      = fmt.Errorf("catalog: schema id not found")
	ErrSoftDeleted     = fmt.Errorf("catalog: version is soft-deleted")
)

// ListSubjects returns subject names, including soft-deleted ones only
// when includeDeleted is set. A subject with no entries at all (every
// version hard-deleted) no longer exists and is never listed.
func (c *Catalog) ListSubjects(includeDeleted bool) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subjects))
	for name, s := range c.subjects {
		if len(s.Versions) == 0 {
			continue
		}
		if s.allDeleted() && !includeDeleted {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ListVersions returns the live version numbers for subject in
// ascending order. Soft-deleted versions are excluded unless
// includeDeleted is set.
func (c *Catalog) ListVersions(subject string, includeDeleted bool) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[subject]
	if !ok || len(s.Versions) == 0 || (s.allDeleted() && !includeDeleted) {
		return nil, ErrSubjectNotFound
	}
	out := make([]int, 0, len(s.Versions))
	for v, e := range s.Versions {
		if e.Deleted && !includeDeleted {
			continue
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// GetVersion returns the entry for (subject, version).
func (c *Catalog) GetVersion(subject string, version int, includeDeleted bool) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[subject]
	if !ok || len(s.Versions) == 0 || (s.allDeleted() && !includeDeleted) {
		return nil, ErrSubjectNotFound
	}
	e, ok := s.Versions[version]
	if !ok {
		return nil, ErrVersionNotFound
	}
	if e.Deleted && !includeDeleted {
		return nil, ErrSoftDeleted
	}
	return e, nil
}

// GetLatestVersion returns the highest live version for subject.
func (c *Catalog) GetLatestVersion(subject string, includeDeleted bool) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[subject]
	if !ok || len(s.Versions) == 0 || (s.allDeleted() && !includeDeleted) {
		return nil, ErrSubjectNotFound
	}
	versions := make([]int, 0, len(s.Versions))
	for v, e := range s.Versions {
		if e.Deleted && !includeDeleted {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, ErrVersionNotFound
	}
	sort.Ints(versions)
	return s.Versions[versions[len(versions)-1]], nil
}

// CheckSet returns the entries a new registration's compatibility must
// be checked against for level: the single latest live version for a
// non-transitive level, or every live version (oldest-to-newest is not
// required — compatibility is pairwise against each) for a transitive
// one.
func (c *Catalog) CheckSet(subject string, level schema.CompatibilityLevel) ([]*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[subject]
	if !ok {
		return nil, nil
	}
	versions := make([]int, 0, len(s.Versions))
	for v, e := range s.Versions {
		if e.Deleted {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	if len(versions) == 0 {
		return nil, nil
	}
	if !level.Transitive() {
		versions = versions[len(versions)-1:]
	}
	out := make([]*Entry, len(versions))
	for i, v := range versions {
		out[i] = s.Versions[v]
	}
	return out, nil
}

// FindByCanonicalText returns the id already assigned to a schema whose
// canonical text matches, for the fast-match step of registration.
func (c *Catalog) FindByCanonicalText(kind schema.Kind, canonical string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.internTable[internKey(kind, canonical)]
	return id, ok
}

// GetByID returns the representative entry for a global schema id.
func (c *Catalog) GetByID(id int) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.idToEntry[id]
	if !ok {
		return nil, ErrIDNotFound
	}
	return e, nil
}

// SubjectsUsingID returns the subjects that currently have a live
// version pointing at id, used by GetByID's "subjects" expansion.
func (c *Catalog) SubjectsUsingID(id int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for name, s := range c.subjects {
		for _, e := range s.Versions {
			if !e.Deleted && e.ID == id {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// SubjectCompatibility returns the effective compatibility level for
// subject, falling back to the global level.
func (c *Catalog) SubjectCompatibility(subject string) schema.CompatibilityLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.subjects[subject]; ok && s.Compat != nil {
		return *s.Compat
	}
	return c.globalCompat
}

// SubjectMode returns the effective mode for subject, falling back to
// the global mode.
func (c *Catalog) SubjectMode(subject string) kafkalog.SubjectMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.subjects[subject]; ok && s.Mode != nil {
		return *s.Mode
	}
	return c.globalMode
}

// SubjectExists reports whether subject has any live version.
func (c *Catalog) SubjectExists(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[subject]
	if !ok {
		return false
	}
	for _, e := range s.Versions {
		if !e.Deleted {
			return true
		}
	}
	return false
}
