package wearable

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	definitionsSchema = "definitions.schema.json"
	manifestSchema    = "manifest.schema.json"
)

var compileSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	names := []string{definitionsSchema, manifestSchema}
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, err
		}
	}
	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		schemas[name] = schema
	}
	return schemas, nil
})

func validate(schemaName string, payload []byte) error {
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return schemas[schemaName].Validate(instance)
}

// DecodeDefinitions parses and validates a definition list.
func DecodeDefinitions(payload []byte) ([]*Definition, error) {
	if err := validate(definitionsSchema, payload); err != nil {
		return nil, fmt.Errorf("definition list does not match schema: %w", err)
	}
	var definitions []*Definition
	if err := json.Unmarshal(payload, &definitions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition list: %w", err)
	}
	return definitions, nil
}

// DecodeManifest parses and validates a manifest. Manifests of failed bundle
// builds are rejected.
func DecodeManifest(payload []byte) (*Manifest, error) {
	if err := validate(manifestSchema, payload); err != nil {
		return nil, fmt.Errorf("manifest does not match schema: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if manifest.ExitCode != 0 {
		return nil, fmt.Errorf("bundle build failed with exit code %d", manifest.ExitCode)
	}
	return &manifest, nil
}
