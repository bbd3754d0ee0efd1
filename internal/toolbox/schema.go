package toolbox

import (
	"bytes"
	"encoding/json"
	"io"
)

// toReader serialises a JSON-schema-shaped map back into an
// io.Reader, since jsonschema/v5's compiler resources are read from
// io.Reader rather than accepted as a live Go value.
func toReader(schema map[string]any) io.Reader {
	b, err := json.Marshal(schema)
	if err != nil {
		return bytes.NewReader([]byte(`{}`))
	}
	return bytes.NewReader(b)
}

// toInterfaceMap is an identity conversion kept for readability at the
// ValidateInterface call site: jsonschema/v5 validates arbitrary
// decoded JSON values (map[string]any, []any, string, float64, bool,
// nil), which is exactly the shape tool args already arrive in.
func toInterfaceMap(args map[string]any) any {
	return args
}
