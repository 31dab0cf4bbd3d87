// Package ruleset holds the versioned, validated rule configuration and the
// static catalog of governable parameters.
package ruleset

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ParamType enumerates the value types a rule parameter can hold.
type ParamType string

const (
	ParamInt      ParamType = "int"
	ParamFloat    ParamType = "float"
	ParamBool     ParamType = "bool"
	ParamDuration ParamType = "duration"
)

// MaxTier is the highest proposal tier. Non-parametric and unrecognized
// interpretations default to it.
const MaxTier = 7

// Parameter describes one governable rule value.
type Parameter struct {
	Name        string    `yaml:"name"`
	Type        ParamType `yaml:"type"`
	Tier        int       `yaml:"tier"`
	Min         any       `yaml:"min"`
	Max         any       `yaml:"max"`
	Default     any       `yaml:"default"`
	Description string    `yaml:"description"`
}

// Catalog is the static set of parameters governance can touch.
type Catalog struct {
	params []Parameter
	byName map[string]Parameter
}

var loadCatalog = sync.OnceValues(func() (*Catalog, error) {
	var doc struct {
		Parameters []Parameter `yaml:"parameters"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse parameter catalog: %w", err)
	}

	catalog := &Catalog{
		params: doc.Parameters,
		byName: make(map[string]Parameter, len(doc.Parameters)),
	}
	for _, param := range doc.Parameters {
		if param.Name == "" {
			return nil, fmt.Errorf("parameter catalog entry without a name")
		}
		if param.Tier < 1 || param.Tier > MaxTier {
			return nil, fmt.Errorf("parameter %s: tier %d out of range", param.Name, param.Tier)
		}
		if _, dup := catalog.byName[param.Name]; dup {
			return nil, fmt.Errorf("parameter %s declared twice", param.Name)
		}
		switch param.Type {
		case ParamInt, ParamFloat, ParamBool, ParamDuration:
		default:
			return nil, fmt.Errorf("parameter %s: unknown type %q", param.Name, param.Type)
		}
		if _, err := coerceValue(param, param.Default); err != nil {
			return nil, fmt.Errorf("parameter %s: bad default: %w", param.Name, err)
		}
		catalog.byName[param.Name] = param
	}
	return catalog, nil
})

// LoadCatalog parses the embedded parameter catalog. The result is cached.
func LoadCatalog() (*Catalog, error) {
	return loadCatalog()
}

// Lookup returns the parameter with the given name.
func (c *Catalog) Lookup(name string) (Parameter, bool) {
	param, ok := c.byName[name]
	return param, ok
}

// Parameters returns all catalog entries in declaration order.
func (c *Catalog) Parameters() []Parameter {
	return c.params
}

// TierFor returns the tier of a parameter, or MaxTier when the name is not in
// the catalog.
func (c *Catalog) TierFor(name string) int {
	if param, ok := c.byName[name]; ok {
		return param.Tier
	}
	return MaxTier
}
