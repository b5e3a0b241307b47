// Package schema embeds the default field schema for the housing database.
// Store backends load their field metadata from here unless configured with
// an explicit schema document.
package schema

import (
	_ "embed"

	"github.com/havenly/unitwise/pkg/fields"
)

//go:embed schema.yaml
var defaultSchema []byte

// Default parses and returns the embedded default schema.
func Default() (*fields.Schema, error) {
	return fields.ParseSchema(defaultSchema)
}

// Raw returns the embedded schema document bytes.
func Raw() []byte {
	return defaultSchema
}
