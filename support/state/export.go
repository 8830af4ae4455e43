package state

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/geusemaker/geusemaker/api"
)

// ExportFormat selects the serialisation used by Export and Parse.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// Export serialises a deployment record for transport. The YAML form is
// produced through the record's JSON tags, so both formats round-trip
// identically.
func Export(st *api.DeploymentState, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("cannot export state as JSON: %w", err)
		}
		return data, nil
	case FormatYAML:
		data, err := yaml.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("cannot export state as YAML: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Parse reads an exported record back. Parsed records are validated, so an
// export/parse round-trip yields a usable state or a clear error.
func Parse(data []byte, format ExportFormat) (*api.DeploymentState, error) {
	st := &api.DeploymentState{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, st); err != nil {
			return nil, fmt.Errorf("cannot parse JSON state: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, st); err != nil {
			return nil, fmt.Errorf("cannot parse YAML state: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}
