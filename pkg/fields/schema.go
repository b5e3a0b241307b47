package fields

import (
	"github.com/goccy/go-yaml"

	"github.com/havenly/unitwise/pkg/errors"
)

// Schema declares the recognized fields of the housing database: the
// apartment table and the units table. Stores load their field metadata
// from a schema document; the diff engine iterates these lists and ignores
// any submitted field name that matches neither.
type Schema struct {
	Apartment []Field `yaml:"apartment"`
	Unit      []Field `yaml:"unit"`
}

// ParseSchema parses a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.WrapParse("yaml", "schema", err)
	}
	for _, f := range append(append([]Field{}, s.Apartment...), s.Unit...) {
		if f.Name == "" {
			return nil, errors.NewValidationError("name", f, "schema field missing name")
		}
	}
	return &s, nil
}

// ApartmentIndex returns the apartment fields keyed by name.
func (s *Schema) ApartmentIndex() map[string]Field {
	return Index(s.Apartment)
}

// UnitIndex returns the unit fields keyed by name.
func (s *Schema) UnitIndex() map[string]Field {
	return Index(s.Unit)
}
