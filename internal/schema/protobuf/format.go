// Package protobuf adapts github.com/bufbuild/protocompile (a real
// .proto-text compiler, unlike the teacher registry's FileDescriptorProto
// JSON shortcut) to the schema.Format interface. Compatibility checking
// keeps the teacher's field-number/kind structural walk, applied to
// descriptors compiled from source instead of decoded from JSON.
package protobuf

import (
	"context"
	"fmt"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"google.golang.org/protobuf/reflect/protoreflect"

	"schemaregistry/internal/schema"
)

const mainFile = "schema.proto"

func init() {
	schema.RegisterFormat(schema.KindProtobuf, &Format{})
}

type Format struct{}

func compile(text string, imports schema.Imports) (linker.File, error) {
	sources := make(map[string]string, len(imports)+1)
	sources[mainFile] = text
	for name, src := range imports {
		sources[name] = src
	}

	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(sources),
		}),
	}
	files, err := compiler.Compile(context.Background(), mainFile)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("protobuf: compiler returned no files for %s", mainFile)
	}
	return files[0], nil
}

func (f *Format) Validate(text string, strict schema.Strictness, imports schema.Imports) error {
	// Reference validation is only asked of registration-path (strict)
	// parses; replay uses Lenient and tolerates unresolved imports the
	// same way the original implementation's validate_references=False
	// does, since historical records were written before every
	// dependency was necessarily still present.
	if strict == schema.Lenient {
		if _, err := compile(text, imports); err != nil {
			// Any compile failure is accepted, syntax errors included,
			// so a replayed record with stale references never aborts
			// the fold; Canonicalize then falls back to the raw text.
			return nil
		}
		return nil
	}
	_, err := compile(text, imports)
	return err
}

func (f *Format) Canonicalize(text string, imports schema.Imports) (string, error) {
	file, err := compile(text, imports)
	if err != nil {
		// Mirror Validate's lenient fallback: canonical form degrades to
		// the raw text when references can't be resolved at replay time.
		return text, nil
	}
	return file.Path() + "\n" + describeFile(file), nil
}

func (f *Format) CheckCompatibility(oldText, newText string, oldImports, newImports schema.Imports, level schema.CompatibilityLevel) (bool, error) {
	if level == schema.CompatNone {
		return true, nil
	}
	oldFile, err := compile(oldText, oldImports)
	if err != nil {
		return false, fmt.Errorf("compile old schema: %w", err)
	}
	newFile, err := compile(newText, newImports)
	if err != nil {
		return false, fmt.Errorf("compile new schema: %w", err)
	}

	switch level {
	case schema.CompatBackward, schema.CompatBackwardTransitive:
		return messagesCompatible(messageTypes(oldFile), messageTypes(newFile))
	case schema.CompatForward, schema.CompatForwardTransitive:
		return messagesCompatible(messageTypes(newFile), messageTypes(oldFile))
	case schema.CompatFull, schema.CompatFullTransitive:
		ok, err := messagesCompatible(messageTypes(oldFile), messageTypes(newFile))
		if err != nil || !ok {
			return false, err
		}
		return messagesCompatible(messageTypes(newFile), messageTypes(oldFile))
	case schema.CompatNone:
		return true, nil
	default:
		return true, nil
	}
}

// messagesCompatible checks that every message+field present in base
// still exists, with the same field kind and cardinality, in other —
// the same rule the teacher registry's Protobuf adapter applied to
// FileDescriptorProto-decoded messages, applied here to compiled
// descriptors.
func messagesCompatible(base, other map[string]protoreflect.MessageDescriptor) (bool, error) {
	for name, baseMsg := range base {
		otherMsg, exists := other[name]
		if !exists {
			return false, fmt.Errorf("message %s removed", name)
		}
		for i := 0; i < baseMsg.Fields().Len(); i++ {
			bf := baseMsg.Fields().Get(i)
			of := otherMsg.Fields().ByNumber(bf.Number())
			if of == nil {
				return false, fmt.Errorf("field %s removed from message %s", bf.Name(), name)
			}
			if bf.Kind() != of.Kind() {
				return false, fmt.Errorf("field %s changed kind in message %s", bf.Name(), name)
			}
			if bf.Cardinality() != of.Cardinality() {
				return false, fmt.Errorf("field %s changed cardinality in message %s", bf.Name(), name)
			}
		}
	}
	return true, nil
}

func messageTypes(file protoreflect.FileDescriptor) map[string]protoreflect.MessageDescriptor {
	out := map[string]protoreflect.MessageDescriptor{}
	msgs := file.Messages()
	for i := 0; i < msgs.Len(); i++ {
		m := msgs.Get(i)
		out[string(m.FullName())] = m
	}
	return out
}

func describeFile(file protoreflect.FileDescriptor) string {
	msgs := file.Messages()
	out := ""
	for i := 0; i < msgs.Len(); i++ {
		m := msgs.Get(i)
		out += string(m.FullName()) + "{"
		for i := 0; i < m.Fields().Len(); i++ {
			f := m.Fields().Get(i)
			out += fmt.Sprintf("%d:%s:%s;", f.Number(), f.Kind(), f.Cardinality())
		}
		out += "}"
	}
	return out
}
