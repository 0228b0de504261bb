package tour

import (
	"bytes"
	_ "embed"
)

//go:embed default_registry.yaml
var defaultRegistryYAML []byte

// DefaultRegistry returns the built-in installer and admin tooltip tables.
func DefaultRegistry() (*Registry, error) {
	return LoadRegistry(bytes.NewReader(defaultRegistryYAML))
}

// MustDefaultRegistry panics if the embedded registry is invalid.
func MustDefaultRegistry() *Registry {
	r, err := DefaultRegistry()
	if err != nil {
		panic(err)
	}
	return r
}
