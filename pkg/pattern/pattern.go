// Package pattern expands filename templates of the form
// "FROM= %SenderName% SUBJECT= %Subject|40%" against a record's dynamic
// fields. The engine does no I/O.
package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/harbormail/mailexport/pkg/base"
)

// DefaultTimeLayout renders time-valued fields when the placeholder carries
// no explicit layout.
const DefaultTimeLayout = "20060102150405"

var placeholderRe = regexp.MustCompile(`%([A-Za-z][A-Za-z0-9_]*)(?:\|([^%|]+))?%`)

// MissingFieldError reports a placeholder referencing a field the record
// does not expose. Callers normally pre-validate with the validate package,
// so seeing this error means validation was skipped.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record has no field %q", e.Field)
}

// Expand replaces every %Name% and %Name|Format% placeholder in pattern with
// the record's field value, scanning left to right. Text outside
// placeholders, including an unmatched trailing '%', is kept literal.
func Expand(pattern string, record base.FieldAccessor) (string, error) {
	var b strings.Builder
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(pattern[last:m[0]])
		name := pattern[m[2]:m[3]]
		format := ""
		if m[4] >= 0 {
			format = pattern[m[4]:m[5]]
		}
		expanded, err := expandField(record, name, format)
		if err != nil {
			return "", err
		}
		b.WriteString(expanded)
		last = m[1]
	}
	b.WriteString(pattern[last:])
	return b.String(), nil
}

// ReferencedFields returns the field names a pattern references, first
// occurrence order, duplicates removed.
func ReferencedFields(pattern string) []string {
	seen := map[string]bool{}
	fields := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			fields = append(fields, m[1])
		}
	}
	return fields
}

func expandField(record base.FieldAccessor, name, format string) (string, error) {
	if !record.HasField(name) {
		return "", &MissingFieldError{Field: name}
	}
	value, err := record.Field(name)
	if err != nil {
		return "", err
	}

	// A positive integer format is a maximum length applied to the
	// stringified value.
	if n, convErr := strconv.Atoi(format); convErr == nil && n > 0 {
		s := strings.TrimLeftFunc(stringify(name, value, ""), unicode.IsSpace)
		if runes := []rune(s); len(runes) > n {
			s = string(runes[:n])
		}
		return strings.TrimRightFunc(s, unicode.IsSpace), nil
	}

	return stringify(name, value, format), nil
}

func stringify(field string, value interface{}, layout string) string {
	switch v := value.(type) {
	case base.EnumValue:
		return enumName(field, v)
	case time.Time:
		if layout == "" {
			layout = DefaultTimeLayout
		}
		return v.Format(layout)
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// enumName expands an enumerated value to its symbolic name. The two-letter
// namespace prefix is stripped for the Class field only: its enumeration
// (ItemClass) is named differently from the field itself, and the stripping
// convention has been verified for that single case. Do not generalize to
// other enumerated fields.
func enumName(field string, v base.EnumValue) string {
	if field == "Class" {
		return ClassName(v)
	}
	return v.Name
}

// ClassName is the short display name of an item-class value: the symbolic
// constant minus its two-letter namespace prefix ("olMail" becomes "Mail").
func ClassName(v base.EnumValue) string {
	name := v.Name
	if len(name) > 2 &&
		unicode.IsLower(rune(name[0])) && unicode.IsLower(rune(name[1])) &&
		unicode.IsUpper(rune(name[2])) {
		return name[2:]
	}
	return name
}
