package schema

import (
	"fmt"
	"sync"
)

// Format is implemented by one adapter per Kind. Adapters live in their
// own packages (schema/avro, schema/jsonschema, schema/protobuf) and
// register themselves from an init() func, the same way database/sql
// drivers register themselves — this package never imports an adapter
// package directly, so there is no import cycle between the shared value
// types here and the format-specific parsing/compat logic there.
// Imports maps a reference name (e.g. a Protobuf import path) to the
// canonical text of the schema it names. Avro and JSON Schema adapters
// ignore it; Protobuf needs it to compile `import` statements.
type Imports map[string]string

type Format interface {
	// Validate parses text and returns a non-nil error if it is not a
	// structurally valid schema of this kind. strict selects Validating
	// vs Lenient parsing.
	Validate(text string, strict Strictness, imports Imports) error
	// Canonicalize returns a normalized text representation used for
	// content-addressed dedup. Two texts that canonicalize to the same
	// string are considered the same schema.
	Canonicalize(text string, imports Imports) (string, error)
	// CheckCompatibility reports whether newText is compatible with
	// oldText under level. The caller passes its configured level
	// unchanged (FULL, NONE and the transitive variants included); an
	// adapter treats each transitive level like its non-transitive form,
	// and the caller covers transitivity by looping over a check set.
	CheckCompatibility(oldText, newText string, oldImports, newImports Imports, level CompatibilityLevel) (bool, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Format{}
)

// RegisterFormat installs the Format adapter for kind. Called from each
// adapter package's init().
func RegisterFormat(kind Kind, f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

func formatFor(kind Kind) (Format, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return f, nil
}

// Typed is the Go analog of a TypedSchema: a schema's kind, its original
// and canonical text, its declared references, and (once resolved) the
// parsed schemas those references point to.
type Typed struct {
	Kind       Kind
	Text       string
	Canonical  string
	References []Reference
	Strict     Strictness

	resolveOnce sync.Once
	resolveErr  error
	deps        map[string]*Typed
}

// Resolver looks up the Typed schema a Reference names. Implementations
// live in internal/catalog, which has the subject/version index Typed
// itself does not.
type Resolver interface {
	Resolve(ref Reference) (*Typed, error)
}

// Parse validates text against kind's adapter, canonicalizes it, and
// resolves references through r. Reference resolution happens eagerly
// (not lazily on first use) because a schema with unresolved references
// is not actually parseable — the Protobuf adapter needs the referenced
// types in scope to compile (the Avro and JSON Schema adapters ignore
// them), and every declared reference must resolve, matching ValidatedTypedSchema/
// ParsedTypedSchema in the original implementation.
func Parse(kind Kind, text string, refs []Reference, r Resolver, strict Strictness) (*Typed, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	f, err := formatFor(kind)
	if err != nil {
		return nil, err
	}

	deps := make(map[string]*Typed, len(refs))
	imports := make(Imports, len(refs))
	for _, ref := range refs {
		dep, err := r.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: reference %s -> %s v%d: %v",
				ErrUnresolvedDependency, ref.Name, ref.Subject, ref.Version, err)
		}
		deps[ref.Name] = dep
		imports[ref.Name] = dep.Canonical
	}

	if err := f.Validate(text, strict, imports); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	canon, err := f.Canonicalize(text, imports)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalize: %v", ErrInvalidSchema, err)
	}

	t := &Typed{
		Kind:       kind,
		Text:       text,
		Canonical:  canon,
		References: refs,
		Strict:     strict,
		deps:       deps,
	}
	t.resolveOnce.Do(func() {})
	return t, nil
}

// Dependencies returns the resolved schemas for this Typed's references,
// keyed by the reference name used in the schema text (e.g. the
// Protobuf import path).
func (t *Typed) Dependencies() map[string]*Typed {
	return t.deps
}

// CheckCompatibility asks this kind's adapter whether candidate is
// compatible with t under level. Transitive levels must be driven by
// the caller iterating the subject's check set; this only ever performs
// one pairwise comparison.
func (t *Typed) CheckCompatibility(candidate *Typed, level CompatibilityLevel) (bool, error) {
	if t.Kind != candidate.Kind {
		return false, fmt.Errorf("%w: cannot compare %s against %s", ErrInvalidSchema, candidate.Kind, t.Kind)
	}
	f, err := formatFor(t.Kind)
	if err != nil {
		return false, err
	}
	return f.CheckCompatibility(t.Canonical, candidate.Canonical, t.importsOf(), candidate.importsOf(), level)
}

func (t *Typed) importsOf() Imports {
	imports := make(Imports, len(t.deps))
	for name, dep := range t.deps {
		imports[name] = dep.Canonical
	}
	return imports
}

// ToMap renders the schema's kind and text as a JSON-compatible value;
// the REST layer does not call it. Protobuf has no such shape (its wire
// form is a compiled descriptor, not a JSON document) and returns
// ErrNoJSONShape.
func (t *Typed) ToMap() (map[string]any, error) {
	if t.Kind == KindProtobuf {
		return nil, ErrNoJSONShape
	}
	return map[string]any{
		"kind": string(t.Kind),
		"text": t.Text,
	}, nil
}
