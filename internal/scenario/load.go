package scenario

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "mirrorcheck://scenario.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return schema, nil
})

// File is the on-disk layout of a scenario file.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load reads, validates and decodes a scenario file.
func Load(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenarios, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return scenarios, nil
}

// Parse validates a scenario document against the schema and decodes it.
func Parse(data []byte) ([]Scenario, error) {
	if err := CheckSchema(data); err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios: %w", err)
	}

	if err := ValidateAll(file.Scenarios); err != nil {
		return nil, err
	}

	return file.Scenarios, nil
}

// CheckSchema validates a YAML scenario document against the embedded schema.
func CheckSchema(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse scenarios: %w", err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to parse scenarios: %w", err)
	}

	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid scenario file: %w", err)
	}

	return nil
}

// Marshal encodes scenarios in the scenario file layout. Names are written
// as their Description.
func Marshal(scenarios []Scenario) ([]byte, error) {
	out := make([]Scenario, len(scenarios))
	for i, sc := range scenarios {
		sc.Name = sc.Description()
		out[i] = sc
	}

	data, err := yaml.Marshal(File{Scenarios: out})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize scenarios: %w", err)
	}

	return data, nil
}
