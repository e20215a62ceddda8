// Package validate checks that a record exposes the fields an export
// operation needs. Presence only; types and emptiness are the exporters'
// concern.
package validate

import (
	"github.com/harbormail/mailexport/pkg/base"
)

// Required composes the field set one export needs: the pattern's referenced
// fields followed by the format-specific fields, duplicates collapsed.
func Required(patternFields, formatFields []string) []string {
	required := []string{}
	seen := map[string]bool{}
	for _, name := range append(append([]string{}, patternFields...), formatFields...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		required = append(required, name)
	}
	return required
}

// Missing returns the required fields the record does not expose, first
// occurrence order, duplicates collapsed. Empty means valid.
func Missing(record base.FieldAccessor, required []string) []string {
	missing := []string{}
	seen := map[string]bool{}
	for _, name := range required {
		if seen[name] {
			continue
		}
		seen[name] = true
		if !record.HasField(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
