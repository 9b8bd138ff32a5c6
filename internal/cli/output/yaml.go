package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format formats data as YAML. Raw JSON values are decoded first so they
// render as YAML structures rather than byte lists.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(normalize(data)); err != nil {
		return err
	}
	return enc.Close()
}

func normalize(data any) any {
	switch v := data.(type) {
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return string(v)
		}
		return out
	case []json.RawMessage:
		out := make([]any, len(v))
		for i := range v {
			out[i] = normalize(v[i])
		}
		return out
	default:
		return data
	}
}
