// Package jsonschema adapts github.com/santhosh-tekuri/jsonschema/v5 to
// the schema.Format interface, carrying over the teacher registry's
// property-level compatibility checker.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"schemaregistry/internal/schema"
)

func init() {
	schema.RegisterFormat(schema.KindJSONSchema, &Format{})
}

type Format struct{}

func compile(text string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader([]byte(text))); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return compiler.Compile("schema.json")
}

func (f *Format) Validate(text string, strict schema.Strictness, imports schema.Imports) error {
	if _, err := compile(text); err != nil {
		return err
	}
	if strict == schema.Validating {
		var probe any
		if err := json.Unmarshal([]byte(text), &probe); err != nil {
			return fmt.Errorf("not valid JSON: %w", err)
		}
		if m, ok := probe.(map[string]any); ok {
			if _, hasSchema := m["$schema"]; !hasSchema {
				return fmt.Errorf("missing required $schema keyword")
			}
		}
	}
	return nil
}

func (f *Format) Canonicalize(text string, imports schema.Imports) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (f *Format) CheckCompatibility(oldText, newText string, oldImports, newImports schema.Imports, level schema.CompatibilityLevel) (bool, error) {
	oldProps, err := properties(oldText)
	if err != nil {
		return false, fmt.Errorf("parse old schema: %w", err)
	}
	newProps, err := properties(newText)
	if err != nil {
		return false, fmt.Errorf("parse new schema: %w", err)
	}

	switch level {
	case schema.CompatBackward, schema.CompatBackwardTransitive:
		return backwardCompatible(oldProps, newProps)
	case schema.CompatForward, schema.CompatForwardTransitive:
		return forwardCompatible(oldProps, newProps)
	case schema.CompatFull, schema.CompatFullTransitive:
		ok, err := backwardCompatible(oldProps, newProps)
		if err != nil || !ok {
			return false, err
		}
		return forwardCompatible(oldProps, newProps)
	case schema.CompatNone:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported compatibility level: %s", level)
	}
}

type propertyInfo struct {
	required bool
	typ      string
}

func properties(text string) (map[string]propertyInfo, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, err
	}
	props := map[string]propertyInfo{}
	rawProps, _ := m["properties"].(map[string]any)
	required := map[string]bool{}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}
	for name, raw := range rawProps {
		pm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		typ := "object"
		if t, ok := pm["type"].(string); ok {
			typ = t
		}
		props[name] = propertyInfo{required: required[name], typ: typ}
	}
	return props, nil
}

func backwardCompatible(oldProps, newProps map[string]propertyInfo) (bool, error) {
	for name, oldProp := range oldProps {
		newProp, exists := newProps[name]
		if !exists {
			if oldProp.required {
				return false, fmt.Errorf("required property %q removed", name)
			}
			continue
		}
		if !typeCompatible(oldProp.typ, newProp.typ) {
			return false, fmt.Errorf("incompatible type for %q: %s -> %s", name, oldProp.typ, newProp.typ)
		}
		if !oldProp.required && newProp.required {
			return false, fmt.Errorf("property %q became required", name)
		}
	}
	return true, nil
}

func forwardCompatible(oldProps, newProps map[string]propertyInfo) (bool, error) {
	for name, newProp := range newProps {
		oldProp, exists := oldProps[name]
		if !exists {
			if newProp.required {
				return false, fmt.Errorf("new required property %q added", name)
			}
			continue
		}
		if !typeCompatible(newProp.typ, oldProp.typ) {
			return false, fmt.Errorf("incompatible type for %q: %s -> %s", name, newProp.typ, oldProp.typ)
		}
		if oldProp.required && !newProp.required {
			return false, fmt.Errorf("property %q became optional", name)
		}
	}
	return true, nil
}

func typeCompatible(oldType, newType string) bool {
	switch oldType {
	case "null", "boolean", "integer", "number", "string", "array", "object":
		return newType == oldType
	default:
		return false
	}
}
