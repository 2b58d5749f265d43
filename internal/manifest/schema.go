package manifest

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

var manifestSchema = jsonschema.MustCompileString("manifest/schema.json", schemaJSON)

// Legend data types accepted in metadata.data_type. Values are kept
// verbatim from the catalog's legend convention.
const (
	DataTypeContinuous = "Continua"
	DataTypeClassified = "Clasificada"
)

// validateSchema checks the decoded document against the manifest schema.
func validateSchema(doc map[string]any) error {
	if err := manifestSchema.Validate(anyDoc(doc)); err != nil {
		return fmt.Errorf("manifest does not match the expected format: %w", err)
	}
	return nil
}

// anyDoc re-types the document for the validator without copying.
func anyDoc(doc map[string]any) any {
	return map[string]any(doc)
}

// validateLegend enforces the consistency rules on the legend metadata
// block: a known data_type, same-length values/colors/classes lists for
// classified layers, and a two-value range with an RGB triple for
// continuous ones.
func validateLegend(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	dataType, _ := metadata["data_type"].(string)
	if dataType != DataTypeContinuous && dataType != DataTypeClassified {
		return fmt.Errorf("metadata.data_type must be one of [%s]",
			strings.Join([]string{DataTypeContinuous, DataTypeClassified}, ", "))
	}

	props, ok := metadata["properties"].(map[string]any)
	if !ok {
		return nil
	}

	switch dataType {
	case DataTypeClassified:
		lengths := map[string]int{}
		for _, key := range []string{"values", "colors", "classes"} {
			list, ok := props[key].([]any)
			if !ok {
				return fmt.Errorf("metadata.properties.%s must be a list", key)
			}
			lengths[key] = len(list)
		}
		if lengths["values"] != lengths["colors"] || lengths["colors"] != lengths["classes"] {
			return fmt.Errorf("metadata.properties values/colors/classes must have the same length")
		}

	case DataTypeContinuous:
		if _, ok := props["class"]; !ok {
			return fmt.Errorf("metadata.properties.class is required for continuous layers")
		}
		if colors, ok := props["colors"].([]any); !ok || len(colors) != 3 {
			return fmt.Errorf("metadata.properties.colors must have 3 elements")
		}
		if values, ok := props["values"].([]any); !ok || len(values) != 2 {
			return fmt.Errorf("metadata.properties.values must have 2 elements")
		}
	}
	return nil
}
