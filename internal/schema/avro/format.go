// Package avro adapts github.com/hamba/avro/v2 to the schema.Format
// interface, adapted from the teacher registry's Avro format adapter:
// the structural field-by-field compatibility checker below is the same
// one, generalized to the shared CompatibilityLevel set.
package avro

import (
	"fmt"
	"regexp"

	"github.com/hamba/avro/v2"

	"schemaregistry/internal/schema"
)

func init() {
	schema.RegisterFormat(schema.KindAvro, &Format{})
}

type Format struct{}

var validNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (f *Format) Validate(text string, strict schema.Strictness, imports schema.Imports) error {
	s, err := avro.Parse(text)
	if err != nil {
		return err
	}
	if strict == schema.Validating {
		return validateStrict(s)
	}
	return nil
}

// validateStrict performs the extra checks the original registry's
// validating (API-ingress) parse applies but its replay (lenient) parse
// skips: enum symbol and record/field name well-formedness. Historical
// log records predating these checks must still replay cleanly, hence
// the split.
func validateStrict(s avro.Schema) error {
	switch t := s.(type) {
	case *avro.RecordSchema:
		if !validNameRe.MatchString(t.Name()) {
			return fmt.Errorf("invalid record name %q", t.Name())
		}
		for _, field := range t.Fields() {
			if !validNameRe.MatchString(field.Name()) {
				return fmt.Errorf("invalid field name %q", field.Name())
			}
			if err := validateStrict(field.Type()); err != nil {
				return err
			}
		}
	case *avro.EnumSchema:
		for _, sym := range t.Symbols() {
			if !validNameRe.MatchString(sym) {
				return fmt.Errorf("invalid enum symbol %q", sym)
			}
		}
	case *avro.ArraySchema:
		return validateStrict(t.Items())
	case *avro.MapSchema:
		return validateStrict(t.Values())
	case *avro.UnionSchema:
		for _, member := range t.Types() {
			if err := validateStrict(member); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Format) Canonicalize(text string, imports schema.Imports) (string, error) {
	s, err := avro.Parse(text)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

func (f *Format) CheckCompatibility(oldText, newText string, oldImports, newImports schema.Imports, level schema.CompatibilityLevel) (bool, error) {
	if level == schema.CompatNone {
		return true, nil
	}
	oldSchema, err := avro.Parse(oldText)
	if err != nil {
		return false, fmt.Errorf("parse old schema: %w", err)
	}
	newSchema, err := avro.Parse(newText)
	if err != nil {
		return false, fmt.Errorf("parse new schema: %w", err)
	}

	switch level {
	case schema.CompatBackward, schema.CompatBackwardTransitive:
		return isCompatible(oldSchema, newSchema)
	case schema.CompatForward, schema.CompatForwardTransitive:
		return isCompatible(newSchema, oldSchema)
	case schema.CompatFull, schema.CompatFullTransitive:
		ok, err := isCompatible(oldSchema, newSchema)
		if err != nil || !ok {
			return false, err
		}
		return isCompatible(newSchema, oldSchema)
	case schema.CompatNone:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported compatibility level: %s", level)
	}
}

// isCompatible reports whether a reader built against readerSchema can
// read data written with writerSchema — i.e. the classic Avro schema
// resolution rule, checked structurally field by field.
func isCompatible(writerSchema, readerSchema avro.Schema) (bool, error) {
	return typesCompatible(writerSchema, readerSchema)
}

func typesCompatible(w, r avro.Schema) (bool, error) {
	if w.Type() != r.Type() {
		return primitiveWidening(string(w.Type()), string(r.Type())), nil
	}
	switch wt := w.(type) {
	case *avro.RecordSchema:
		rt := r.(*avro.RecordSchema)
		rFields := map[string]*avro.Field{}
		for _, rf := range rt.Fields() {
			rFields[rf.Name()] = rf
		}
		for _, wf := range wt.Fields() {
			rf, exists := rFields[wf.Name()]
			if !exists {
				continue // writer field dropped by reader: fine, reader ignores it
			}
			ok, err := typesCompatible(wf.Type(), rf.Type())
			if err != nil || !ok {
				return false, fmt.Errorf("incompatible field %q: %w", wf.Name(), err)
			}
		}
		for _, rf := range rt.Fields() {
			if _, exists := wFieldNames(wt)[rf.Name()]; !exists && !rf.HasDefault() {
				return false, fmt.Errorf("reader field %q has no default and is absent from writer", rf.Name())
			}
		}
		return true, nil
	case *avro.ArraySchema:
		return typesCompatible(wt.Items(), r.(*avro.ArraySchema).Items())
	case *avro.MapSchema:
		return typesCompatible(wt.Values(), r.(*avro.MapSchema).Values())
	case *avro.EnumSchema:
		rSymbols := map[string]bool{}
		for _, s := range r.(*avro.EnumSchema).Symbols() {
			rSymbols[s] = true
		}
		for _, s := range wt.Symbols() {
			if !rSymbols[s] {
				return false, fmt.Errorf("enum symbol %q missing from reader", s)
			}
		}
		return true, nil
	case *avro.UnionSchema:
		for _, wMember := range wt.Types() {
			ok := false
			for _, rMember := range r.(*avro.UnionSchema).Types() {
				if compatible, _ := typesCompatible(wMember, rMember); compatible {
					ok = true
					break
				}
			}
			if !ok {
				return false, fmt.Errorf("union member %s has no compatible reader branch", wMember.Type())
			}
		}
		return true, nil
	default:
		return true, nil
	}
}

func wFieldNames(r *avro.RecordSchema) map[string]bool {
	out := map[string]bool{}
	for _, f := range r.Fields() {
		out[f.Name()] = true
	}
	return out
}

func primitiveWidening(writer, reader string) bool {
	switch writer {
	case "int":
		return reader == "long" || reader == "float" || reader == "double"
	case "long":
		return reader == "float" || reader == "double"
	case "float":
		return reader == "double"
	case "string":
		return reader == "bytes"
	case "bytes":
		return reader == "string"
	default:
		return false
	}
}
