package abi

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed descriptors/default.yaml
var defaultYAML []byte

// Default returns the built-in descriptor shipped with this module,
// modeling a 64-bit host with low-bit tagging. Callers targeting a
// different host layout should use Load with their own descriptor file.
func Default() (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(defaultYAML, &d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
