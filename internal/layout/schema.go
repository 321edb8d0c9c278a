package layout

import (
	"github.com/invopop/jsonschema"
)

// Schema reflects the machine-description contract into a JSON schema for
// editor tooling and document linting. cmd/schema writes it to disk.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Document{})
	schema.Title = "Pinball Machine Layout"
	schema.Description = "Designer-authored play-field description: bounds, obstacles, spawners, and the goal sensor."
	return schema
}
