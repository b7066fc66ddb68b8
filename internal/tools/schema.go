package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives the JSON Schema for a tool's typed input struct. Field
// descriptions come from `jsonschema:"description=..."` tags; optional
// fields carry `json:",omitempty"`.
func SchemaFor(input any) json.RawMessage {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(input)
	schema.Version = ""
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
