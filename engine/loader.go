package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// definitionSchemaDoc is the JSON-shape pre-validation schema applied to a
// definition file before it is unmarshalled into a WorkflowDefinition and
// run through Validate. It catches the kind of malformed document (wrong
// type for a field, a step missing its discriminant) that would otherwise
// surface as a confusing zero-value rather than a clear parse error.
const definitionSchemaDoc = `{
	"type": "object",
	"required": ["id", "entryPoint", "steps"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"plugin": {"type": "string"},
		"version": {"type": "string"},
		"entryPoint": {"type": "string", "minLength": 1},
		"ttlMillis": {"type": "integer"},
		"showProgress": {"type": "boolean"},
		"steps": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "object",
				"required": ["kind", "content"],
				"properties": {
					"kind": {"type": "string"},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

var (
	definitionSchema     *jsonschema.Schema
	definitionSchemaOnce sync.Once
	definitionSchemaErr  error
)

func compiledDefinitionSchema() (*jsonschema.Schema, error) {
	definitionSchemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(definitionSchemaDoc), &doc); err != nil {
			definitionSchemaErr = fmt.Errorf("engine: unmarshal definition schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("workflow-definition.json", doc); err != nil {
			definitionSchemaErr = fmt.Errorf("engine: add definition schema resource: %w", err)
			return
		}
		schema, err := c.Compile("workflow-definition.json")
		if err != nil {
			definitionSchemaErr = fmt.Errorf("engine: compile definition schema: %w", err)
			return
		}
		definitionSchema = schema
	})
	return definitionSchema, definitionSchemaErr
}

// LoadDefinitionFile reads a .yaml/.yml/.json workflow definition file,
// pre-validates its raw shape against definitionSchemaDoc, unmarshals it
// into a WorkflowDefinition, and runs the full structural Validate. Any
// failure at any stage is returned with the path and stage identified; a
// definition that fails here must never reach a Registry.
func LoadDefinitionFile(path string) (WorkflowDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return WorkflowDefinition{}, fmt.Errorf("engine: read %s: %w", path, err)
	}

	isYAML := isYAMLExt(path)

	var doc any
	if isYAML {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return WorkflowDefinition{}, fmt.Errorf("engine: parse %s: %w", path, err)
		}
		doc, err = normalizeYAMLDoc(doc)
		if err != nil {
			return WorkflowDefinition{}, fmt.Errorf("engine: normalize %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return WorkflowDefinition{}, fmt.Errorf("engine: parse %s: %w", path, err)
		}
	}

	schema, err := compiledDefinitionSchema()
	if err != nil {
		return WorkflowDefinition{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return WorkflowDefinition{}, fmt.Errorf("engine: %s fails schema validation: %w", path, err)
	}

	var def WorkflowDefinition
	if isYAML {
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return WorkflowDefinition{}, fmt.Errorf("engine: decode %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(raw, &def); err != nil {
			return WorkflowDefinition{}, fmt.Errorf("engine: decode %s: %w", path, err)
		}
	}

	if err := def.Validate(); err != nil {
		return WorkflowDefinition{}, fmt.Errorf("engine: %s: %w", path, err)
	}
	return def, nil
}

// normalizeYAMLDoc round-trips a yaml.v3-decoded document through
// encoding/json so its scalar types (int vs float64, map key types) match
// what jsonschema expects from a JSON-decoded document.
func normalizeYAMLDoc(doc any) (any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func isYAMLExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func isDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}

// LoadDefinitionsDir loads every definition file directly inside dir
// (non-recursive), returning the successfully loaded definitions keyed by
// id alongside a per-file error for anything that failed to load. A
// partial failure never aborts the rest of the directory.
func LoadDefinitionsDir(dir string) (map[string]WorkflowDefinition, map[string]error) {
	defs := make(map[string]WorkflowDefinition)
	errs := make(map[string]error)

	entries, err := os.ReadDir(dir)
	if err != nil {
		errs[dir] = fmt.Errorf("engine: read dir %s: %w", dir, err)
		return defs, errs
	}
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := LoadDefinitionFile(path)
		if err != nil {
			errs[path] = err
			continue
		}
		defs[def.ID] = def
	}
	return defs, errs
}
