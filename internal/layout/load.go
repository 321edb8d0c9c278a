package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML document, fills defaults, lints it against the
// generated schema, and runs the structural checks.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("layout: parse document: %w", err)
	}
	doc = doc.Normalized()
	schema, err := bundledSchema()
	if err != nil {
		return Document{}, err
	}
	if err := ValidateAgainstSchema(doc, schema); err != nil {
		return Document{}, err
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Load reads a machine description from disk. An empty path yields the
// standard machine.
func Load(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return StandardLayout(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("layout: read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("layout: %s: %w", path, err)
	}
	return doc, nil
}

// SchemaJSON renders the machine-description schema. The same bytes back
// the /layout/schema endpoint, the cmd/schema generator, and the lint step
// in Parse, so the three can never drift apart.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("layout: encode schema: %w", err)
	}
	return data, nil
}

var (
	bundledOnce     sync.Once
	bundledCompiled *jsonschema.Schema
	bundledErr      error
)

// bundledSchema compiles the generated schema once per process.
func bundledSchema() (*jsonschema.Schema, error) {
	bundledOnce.Do(func() {
		data, err := SchemaJSON()
		if err != nil {
			bundledErr = err
			return
		}
		bundledCompiled, bundledErr = jsonschema.CompileString("layout.schema.json", string(data))
		if bundledErr != nil {
			bundledErr = fmt.Errorf("layout: compile bundled schema: %w", bundledErr)
		}
	})
	return bundledCompiled, bundledErr
}

// CompileSchema loads a schema document from disk, for linting authored
// documents against a checked-in copy instead of the bundled one.
func CompileSchema(path string) (*jsonschema.Schema, error) {
	schema, err := jsonschema.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: compile schema %s: %w", path, err)
	}
	return schema, nil
}

// ValidateAgainstSchema checks a document against the compiled schema. The
// document is round-tripped through JSON because the validator consumes
// decoded JSON values.
func ValidateAgainstSchema(doc Document, schema *jsonschema.Schema) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("layout: encode document: %w", err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("layout: decode document: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("layout: schema violation: %w", err)
	}
	return nil
}
