// Package catalog owns the in-memory projection folded from the schema
// log: subjects, versions, ids, configs, and subject modes. Exactly one
// goroutine (the projector, internal/projector) ever calls Apply; all
// other callers only read via the narrow accessor methods,
// which take a brief RLock and never block on Kafka.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"schemaregistry/internal/kafkalog"
	"schemaregistry/internal/schema"
)

// SubjectVersion identifies one registered schema version.
type SubjectVersion struct {
	Subject string
	Version int
}

// Entry is one (subject, version) -> schema mapping folded from a
// SCHEMA record. Parsing is memoized: a live entry is parsed (and its
// references resolved) once, when it is folded, so its canonical text
// can join the fast-match index; later Typed calls reuse that result.
type Entry struct {
	ID         int
	Subject    string
	Version    int
	Kind       schema.Kind
	Text       string
	References []schema.Reference
	Deleted    bool

	parseOnce sync.Once
	parsed    *schema.Typed
	parseErr  error
}

// Subject tracks one subject's versions and per-subject overrides.
// Whether a subject is "deleted" is never tracked as a standalone flag:
// a subject with every entry's Deleted set is soft-deleted, and a
// subject with no entries at all no longer exists (its map entry is
// removed on the hard delete of its last version).
type Subject struct {
	Name       string
	Versions   map[int]*Entry
	MaxVersion int
	Compat     *schema.CompatibilityLevel // nil == inherit global
	Mode       *kafkalog.SubjectMode       // nil == inherit global
}

// allDeleted reports whether every entry of s is soft-deleted. A
// subject with no entries at all is not considered "all deleted" by
// this helper; callers filter empty subjects separately.
func (s *Subject) allDeleted() bool {
	if len(s.Versions) == 0 {
		return false
	}
	for _, e := range s.Versions {
		if !e.Deleted {
			return false
		}
	}
	return true
}

// Catalog is the full projected state. Zero value is not usable; use New.
type Catalog struct {
	mu sync.RWMutex

	subjects map[string]*Subject

	// idToEntry gives the representative Entry for a global schema id,
	// used by GetByID: since an id is deduplicated across
	// subjects by content, any subject sharing that id resolves to an
	// equivalent schema.
	idToEntry map[int]*Entry
	// internTable maps a kind-qualified canonical text to the id already
	// assigned to it, the fast-match/dedup index of C6 step 2.
	internTable map[string]int

	globalCompat schema.CompatibilityLevel
	globalMode   kafkalog.SubjectMode

	globalSchemaID int64 // high-water mark; next id is this+1
	offset         int64 // last folded offset, -1 before anything folded
	schemaKeyFmt   kafkalog.KeyFormat

	onRecord func(kind kafkalog.KeyType) // metrics hook, may be nil
}

func New() *Catalog {
	return &Catalog{
		subjects:       map[string]*Subject{},
		idToEntry:      map[int]*Entry{},
		internTable:    map[string]int{},
		globalCompat:   schema.CompatBackward,
		globalMode:     kafkalog.ModeReadWrite,
		globalSchemaID: 0,
		offset:         -1,
		schemaKeyFmt:   kafkalog.FormatCanonical,
	}
}

// OnRecord installs a callback invoked once per successfully-dispatched
// record, used to feed internal/metrics counters without the catalog
// importing the metrics package.
func (c *Catalog) OnRecord(fn func(kind kafkalog.KeyType)) {
	c.mu.Lock()
	c.onRecord = fn
	c.mu.Unlock()
}

func internKey(kind schema.Kind, canonical string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + canonical))
	return hex.EncodeToString(sum[:])
}

// Apply folds one raw Kafka record into the catalog. It never returns
// an error for malformed SCHEMA payloads — those are logged here and
// skipped — only for unrecoverable decode failures of the
// key itself, which the projector also treats as skip-and-log rather
// than fatal.
func (c *Catalog) Apply(rec kafkalog.Record) error {
	key, err := kafkalog.ParseKey(rec.Key)
	if err != nil {
		return fmt.Errorf("catalog: decode key at offset %d: %w", rec.Offset, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch key.Type {
	case kafkalog.KeyTypeNoop:
		// no state change

	case kafkalog.KeyTypeConfig:
		c.applyConfig(key, rec.Value)

	case kafkalog.KeyTypeMode:
		c.applyMode(key, rec.Value)

	case kafkalog.KeyTypeSchema:
		c.schemaKeyFmt = key.Format
		if err := c.applySchema(key, rec.Value); err != nil {
			// Swallowed by design: the projection must never stall on
			// one bad historical record.
			slog.Error("catalog: skipping malformed schema record", "offset", rec.Offset, "error", err)
			c.offset = rec.Offset
			if c.onRecord != nil {
				c.onRecord(key.Type)
			}
			return nil
		}

	case kafkalog.KeyTypeDeleteSubject:
		c.applyDeleteSubject(key, rec.Value)

	default:
		// Unknown keytype: tolerate, matching the NOOP-record rationale
		// of never stalling replay on a record shape we don't know yet.
	}

	c.offset = rec.Offset
	if c.onRecord != nil {
		c.onRecord(key.Type)
	}
	return nil
}

func (c *Catalog) applyConfig(key kafkalog.Key, raw []byte) {
	v, err := kafkalog.ParseConfigValue(raw)
	if err != nil || v == nil {
		if key.Subject == "" {
			c.globalCompat = schema.CompatBackward
		} else if s := c.subjects[key.Subject]; s != nil {
			s.Compat = nil
		}
		return
	}
	level := schema.CompatibilityLevel(v.CompatibilityLevel)
	if !level.Valid() {
		return
	}
	if key.Subject == "" {
		c.globalCompat = level
		return
	}
	s := c.subjectOrNew(key.Subject)
	s.Compat = &level
}

func (c *Catalog) applyMode(key kafkalog.Key, raw []byte) {
	v, err := kafkalog.ParseModeValue(raw)
	if err != nil || v == nil {
		if key.Subject == "" {
			c.globalMode = kafkalog.ModeReadWrite
		} else if s := c.subjects[key.Subject]; s != nil {
			s.Mode = nil
		}
		return
	}
	if key.Subject == "" {
		c.globalMode = v.Mode
		return
	}
	s := c.subjectOrNew(key.Subject)
	mode := v.Mode
	s.Mode = &mode
}

// applyDeleteSubject is the DELETE_SUBJECT transition (spec §4.4): mark
// every entry with version <= value.Version as deleted and drop its
// fast-match entry, the same way a per-version soft delete would. There
// is no subject-level flag to set — a subject reads as "deleted" only
// once every one of its entries is.
func (c *Catalog) applyDeleteSubject(key kafkalog.Key, raw []byte) {
	v, err := kafkalog.ParseDeleteSubjectValue(raw)
	if err != nil || v == nil {
		return
	}
	s := c.subjects[v.Subject]
	if s == nil {
		return
	}
	for version, e := range s.Versions {
		if version > v.Version || e.Deleted {
			continue
		}
		e.Deleted = true
		c.evictInternLocked(e)
	}
}

// evictInternLocked removes entry's fast-match index entry, if any. Must
// be called with c.mu held for writing.
func (c *Catalog) evictInternLocked(entry *Entry) {
	typed, err := c.resolveEntryLocked(entry)
	if err != nil {
		return
	}
	internTableKey := internKey(entry.Kind, typed.Canonical)
	if id, ok := c.internTable[internTableKey]; ok && id == entry.ID {
		delete(c.internTable, internTableKey)
	}
}

func (c *Catalog) applySchema(key kafkalog.Key, raw []byte) error {
	v, err := kafkalog.ParseSchemaValue(raw)
	if err != nil {
		return err
	}
	if v == nil {
		// Hard delete (tombstone): remove this version entirely. The id
		// stays retired — it is never reassigned (invariant 1). Once the
		// last version of a subject is hard-deleted the subject itself is
		// gone, not merely empty.
		if s := c.subjects[key.Subject]; s != nil {
			delete(s.Versions, key.Version)
			if len(s.Versions) == 0 {
				delete(c.subjects, key.Subject)
			}
		}
		return nil
	}

	kind := schema.Kind(v.SchemaType)
	if !kind.Valid() {
		return fmt.Errorf("catalog: unknown schema type %q", v.SchemaType)
	}
	refs := make([]schema.Reference, len(v.References))
	for i, r := range v.References {
		refs[i] = schema.Reference{Name: r.Name, Subject: r.Subject, Version: r.Version}
	}

	entry := &Entry{
		ID:         v.ID,
		Subject:    v.Subject,
		Version:    v.Version,
		Kind:       kind,
		Text:       v.Schema,
		References: refs,
		Deleted:    v.Deleted,
	}

	s := c.subjectOrNew(v.Subject)
	s.Versions[v.Version] = entry
	if v.Version > s.MaxVersion {
		s.MaxVersion = v.Version
	}

	c.idToEntry[v.ID] = entry
	if int64(v.ID) > c.globalSchemaID {
		c.globalSchemaID = int64(v.ID)
	}

	if v.Deleted {
		// A soft-deleted record must never win the fast-match race, and
		// must evict any fast-match entry it previously held (spec §4.4
		// step 8): a subsequent registration of this exact content must
		// not silently resolve to a version already marked gone.
		c.evictInternLocked(entry)
		return nil
	}

	// Best-effort interning: only entries that parse cleanly join the
	// fast-match index. A parse failure here just means future
	// registrations won't dedup against this historical record by
	// canonical text (they'll still dedup by exact id via idToEntry).
	if typed, err := c.resolveEntryLocked(entry); err == nil {
		internTableKey := internKey(kind, typed.Canonical)
		if _, exists := c.internTable[internTableKey]; !exists {
			c.internTable[internTableKey] = v.ID
		}
	}
	return nil
}

func (c *Catalog) subjectOrNew(name string) *Subject {
	s, ok := c.subjects[name]
	if !ok {
		s = &Subject{Name: name, Versions: map[int]*Entry{}}
		c.subjects[name] = s
	}
	return s
}

// Offset returns the last-folded record offset, or -1 if nothing has
// been folded yet.
func (c *Catalog) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// NextGlobalID returns the id the registration pipeline should assign
// to the next brand-new schema.
func (c *Catalog) NextGlobalID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.globalSchemaID) + 1
}

// GlobalCompatibility returns the effective global compatibility level.
func (c *Catalog) GlobalCompatibility() schema.CompatibilityLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.globalCompat
}

// SchemaKeyFormat reports which historical key shape the log is
// currently written in, so the producer continues it rather than
// switching formats mid-log.
func (c *Catalog) SchemaKeyFormat() kafkalog.KeyFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemaKeyFmt
}

// Digest returns a deterministic summary of the full projected state,
// used to assert two independently-folded catalogs converged to the
// same result (the S5 property).
func (c *Catalog) Digest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.subjects))
	for n := range c.subjects {
		names = append(names, n)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "offset=%d;globalID=%d;globalCompat=%s;", c.offset, c.globalSchemaID, c.globalCompat)
	for _, name := range names {
		s := c.subjects[name]
		versions := make([]int, 0, len(s.Versions))
		for v := range s.Versions {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		fmt.Fprintf(h, "subject=%s;allDeleted=%v;", name, s.allDeleted())
		for _, v := range versions {
			e := s.Versions[v]
			fmt.Fprintf(h, "v=%d;id=%d;kind=%s;deleted=%v;text=%s;", v, e.ID, e.Kind, e.Deleted, e.Text)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
