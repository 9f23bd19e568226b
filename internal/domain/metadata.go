package domain

// Metadata is the schema-less extension bag attached to a transfer aggregate.
// Under encoding/json its values are the tagged JSON variants: bool, float64,
// string, nil, []any and map[string]any. The reserved "connector_response"
// key holds the raw payload of the most recent provider call.
type Metadata map[string]any

// MetadataConnectorResponse is the reserved metadata key under which the raw
// connector payload is merged after every provider call.
const MetadataConnectorResponse = "connector_response"

// Clone returns a deep copy of the metadata bag.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	cp := make(Metadata, len(m))
	for k, v := range m {
		cp[k] = cloneJSONValue(v)
	}
	return cp
}

func cloneJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, inner := range val {
			cp[k] = cloneJSONValue(inner)
		}
		return cp
	case Metadata:
		return map[string]any(val.Clone())
	case []any:
		cp := make([]any, len(val))
		for i, inner := range val {
			cp[i] = cloneJSONValue(inner)
		}
		return cp
	default:
		// Scalars (string, bool, float64, json.Number, nil) are immutable.
		return val
	}
}
