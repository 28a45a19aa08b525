package catalog

import (
	"fmt"

	"schemaregistry/internal/schema"
)

// resolveEntryLocked parses entry's Typed form if not already cached.
// Must be called with c.mu held (for either read or write — entry's
// own parseOnce guards the actual parse, so concurrent callers holding
// only an RLock are still safe).
func (c *Catalog) resolveEntryLocked(entry *Entry) (*schema.Typed, error) {
	return c.resolveChain(entry, map[SubjectVersion]bool{})
}

func (c *Catalog) resolveChain(entry *Entry, visiting map[SubjectVersion]bool) (*schema.Typed, error) {
	sv := SubjectVersion{Subject: entry.Subject, Version: entry.Version}
	if visiting[sv] {
		return nil, fmt.Errorf("%w: %s v%d", schema.ErrReferenceCycle, sv.Subject, sv.Version)
	}

	entry.parseOnce.Do(func() {
		visiting[sv] = true
		defer delete(visiting, sv)

		r := &chainResolver{cat: c, visiting: visiting}
		entry.parsed, entry.parseErr = schema.Parse(entry.Kind, entry.Text, entry.References, r, schema.Lenient)
	})
	return entry.parsed, entry.parseErr
}

// chainResolver implements schema.Resolver for one resolution call
// chain, threading the visiting set through recursive reference lookups
// so a malformed (hand-edited) log that introduces a reference cycle is
// rejected instead of recursing forever.
type chainResolver struct {
	cat      *Catalog
	visiting map[SubjectVersion]bool
}

func (r *chainResolver) Resolve(ref schema.Reference) (*schema.Typed, error) {
	s, ok := r.cat.subjects[ref.Subject]
	if !ok {
		return nil, fmt.Errorf("subject %s not found", ref.Subject)
	}
	entry, ok := s.Versions[ref.Version]
	if !ok {
		return nil, fmt.Errorf("subject %s version %d not found", ref.Subject, ref.Version)
	}
	return r.cat.resolveChain(entry, r.visiting)
}

// Resolve looks up and parses the schema a reference names, for use by
// the registration pipeline when validating a new schema's references
// before it is appended to the log.
func (c *Catalog) Resolve(ref schema.Reference) (*schema.Typed, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return (&chainResolver{cat: c, visiting: map[SubjectVersion]bool{}}).Resolve(ref)
}

// Typed returns entry's parsed/resolved schema, parsing it on first use.
func (c *Catalog) Typed(entry *Entry) (*schema.Typed, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveEntryLocked(entry)
}
