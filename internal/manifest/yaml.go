// Copyright 2025 James Ross
package manifest

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
)

// ParseYAML decodes a YAML-authored manifest into the same Manifest type
// Parse produces from JSON, running the identical schema and invariant
// checks. Operators may author either encoding; the struct's dual
// json/yaml tags exist for exactly this path.
func ParseYAML(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, kernelerrors.NewValidationError("ManifestMalformed", "manifest YAML could not be decoded", err.Error())
	}

	// Re-run schema validation against the JSON projection, so a YAML
	// manifest is held to the same structural schema a JSON one is.
	asJSON, err := json.Marshal(&m)
	if err != nil {
		return nil, kernelerrors.NewValidationError("ManifestMalformed", "decoded manifest could not be re-encoded for schema validation", err.Error())
	}
	if err := ValidateJSON(asJSON); err != nil {
		return nil, err
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SerializeYAML encodes m to its YAML form.
func SerializeYAML(m *Manifest) ([]byte, error) {
	return yaml.Marshal(m)
}
