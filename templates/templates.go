// Package templates embeds the reference pipeline shipped with cigraph.
package templates

import (
	_ "embed"

	"github.com/vk/cigraph/internal/template"
)

// ReferenceName is the source name of the embedded reference pipeline.
const ReferenceName = "ci.yml"

//go:embed ci.yml
var reference []byte

// Reference parses the embedded reference pipeline.
func Reference() (*template.Document, error) {
	return template.LoadBytes(reference, ReferenceName)
}

// ReferenceSource returns the raw embedded reference pipeline.
func ReferenceSource() []byte {
	return append([]byte(nil), reference...)
}
