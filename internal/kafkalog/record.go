// Package kafkalog defines the wire shapes written to and read from the
// single compacted schema-log partition, and the Log interface the
// projector and producer consume. Two concrete Logs exist: a franz-go
// backed one (client.go) for production, and an in-memory one (memory.go)
// used by tests so the catalog/registry/projector can be exercised
// without a live Kafka broker.
package kafkalog

import (
	"encoding/json"
	"fmt"
)

// KeyType discriminates the kind of record folded by the projector.
type KeyType string

const (
	KeyTypeSchema        KeyType = "SCHEMA"
	KeyTypeConfig        KeyType = "CONFIG"
	KeyTypeDeleteSubject KeyType = "DELETE_SUBJECT"
	KeyTypeMode          KeyType = "MODE"
	KeyTypeNoop          KeyType = "NOOP"
)

// KeyFormat distinguishes the two historical on-wire key shapes. Both
// are accepted on replay; the format of the last SCHEMA record folded
// (whatever its subject) is the one new writes continue in, so a
// registry joining an existing log never rewrites history into a shape
// older consumers of that log don't expect.
type KeyFormat int

const (
	FormatCanonical KeyFormat = iota
	FormatDeprecated
)

// Key is the decoded form of a record's Kafka key, regardless of wire
// format.
type Key struct {
	Type    KeyType
	Subject string // empty for global CONFIG/MODE/NOOP
	Version int    // meaningful only for KeyTypeSchema
	Format  KeyFormat
}

// canonicalKeyWire is the modern key shape: always carries "keytype" and
// a "magic" byte.
type canonicalKeyWire struct {
	Keytype KeyType `json:"keytype"`
	Subject *string `json:"subject,omitempty"`
	Version *int    `json:"version,omitempty"`
	Magic   int     `json:"magic"`
}

// deprecatedSchemaKeyWire is the legacy shape emitted by older
// registries for SCHEMA records: no "keytype" or "magic" field at all,
// just subject+version.
type deprecatedSchemaKeyWire struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// ParseKey decodes a record key, accepting both historical formats.
func ParseKey(raw []byte) (Key, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Key{}, fmt.Errorf("kafkalog: decode key: %w", err)
	}

	if _, hasKeytype := probe["keytype"]; hasKeytype {
		var w canonicalKeyWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Key{}, fmt.Errorf("kafkalog: decode canonical key: %w", err)
		}
		k := Key{Type: w.Keytype, Format: FormatCanonical}
		if w.Subject != nil {
			k.Subject = *w.Subject
		}
		if w.Version != nil {
			k.Version = *w.Version
		}
		return k, nil
	}

	// No "keytype" field: only the deprecated SCHEMA key shape lacked
	// one, so treat it as SCHEMA if it has subject+version, else reject.
	_, hasSubject := probe["subject"]
	_, hasVersion := probe["version"]
	if hasSubject && hasVersion {
		var w deprecatedSchemaKeyWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Key{}, fmt.Errorf("kafkalog: decode deprecated key: %w", err)
		}
		return Key{Type: KeyTypeSchema, Subject: w.Subject, Version: w.Version, Format: FormatDeprecated}, nil
	}

	return Key{}, fmt.Errorf("kafkalog: unrecognized key shape: %s", raw)
}

// ReferenceWire is a reference entry as it appears in a SCHEMA value.
type ReferenceWire struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// SchemaValue is the decoded value of a SCHEMA record. A nil *SchemaValue
// with a nil error from ParseSchemaValue means the record is a hard
// delete (tombstone): empty/null value bytes.
type SchemaValue struct {
	Subject    string          `json:"subject"`
	Version    int             `json:"version"`
	ID         int             `json:"id"`
	Schema     string          `json:"schema"`
	SchemaType string          `json:"schemaType,omitempty"` // absent == AVRO, historical default
	References []ReferenceWire `json:"references,omitempty"`
	Deleted    bool            `json:"deleted,omitempty"`
}

func ParseSchemaValue(raw []byte) (*SchemaValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v SchemaValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("kafkalog: decode schema value: %w", err)
	}
	if v.SchemaType == "" {
		v.SchemaType = "AVRO"
	}
	return &v, nil
}

type ConfigValue struct {
	CompatibilityLevel string `json:"compatibilityLevel"`
}

func ParseConfigValue(raw []byte) (*ConfigValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v ConfigValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("kafkalog: decode config value: %w", err)
	}
	return &v, nil
}

type DeleteSubjectValue struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

func ParseDeleteSubjectValue(raw []byte) (*DeleteSubjectValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v DeleteSubjectValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("kafkalog: decode delete-subject value: %w", err)
	}
	return &v, nil
}

type SubjectMode string

const (
	ModeReadWrite SubjectMode = "READWRITE"
	ModeReadOnly  SubjectMode = "READONLY"
	ModeImport    SubjectMode = "IMPORT"
)

type ModeValue struct {
	Mode SubjectMode `json:"mode"`
}

func ParseModeValue(raw []byte) (*ModeValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v ModeValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("kafkalog: decode mode value: %w", err)
	}
	return &v, nil
}

// --- record builders: single source of truth for wire shape, shared by
// the producer and the projector's decoder so they cannot drift apart. ---

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func NewSchemaKey(subject string, version int, format KeyFormat) ([]byte, error) {
	if format == FormatDeprecated {
		return json.Marshal(deprecatedSchemaKeyWire{Subject: subject, Version: version})
	}
	return json.Marshal(canonicalKeyWire{
		Keytype: KeyTypeSchema,
		Subject: strPtr(subject),
		Version: intPtr(version),
		Magic:   1,
	})
}

func NewSchemaValue(v SchemaValue) ([]byte, error) {
	return json.Marshal(v)
}

func NewConfigKey(subject string) ([]byte, error) {
	w := canonicalKeyWire{Keytype: KeyTypeConfig, Magic: 0}
	if subject != "" {
		w.Subject = strPtr(subject)
	}
	return json.Marshal(w)
}

func NewConfigValue(level string) ([]byte, error) {
	return json.Marshal(ConfigValue{CompatibilityLevel: level})
}

func NewModeKey(subject string) ([]byte, error) {
	w := canonicalKeyWire{Keytype: KeyTypeMode, Magic: 0}
	if subject != "" {
		w.Subject = strPtr(subject)
	}
	return json.Marshal(w)
}

func NewModeValue(mode SubjectMode) ([]byte, error) {
	return json.Marshal(ModeValue{Mode: mode})
}

func NewDeleteSubjectKey(subject string) ([]byte, error) {
	return json.Marshal(canonicalKeyWire{Keytype: KeyTypeDeleteSubject, Subject: strPtr(subject), Magic: 0})
}

func NewDeleteSubjectValue(subject string, latestVersion int) ([]byte, error) {
	return json.Marshal(DeleteSubjectValue{Subject: subject, Version: latestVersion})
}

func NewNoopKey() ([]byte, error) {
	return json.Marshal(canonicalKeyWire{Keytype: KeyTypeNoop, Magic: 0})
}
