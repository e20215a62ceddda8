// Package export persists a single validated item to a resolved path, in
// either the source provider's whole-item serialization or one of the
// body-only representations.
package export

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/pathname"
	"github.com/harbormail/mailexport/pkg/utils"
)

// Exporter writes one item to one path. RequiredFields is what the validator
// must see on the record before Export is called.
type Exporter interface {
	Extension() string
	RequiredFields() []string
	SuffixStyle() pathname.SuffixStyle
	Export(ctx context.Context, item base.Item, path string) error
}

// ForFormat returns the exporter for an export format.
func ForFormat(format base.Format, fs utils.FileManager) (Exporter, error) {
	switch format {
	case base.FormatMessage:
		return &MessageExporter{}, nil
	case base.FormatHTML:
		return &BodyExporter{Format: format, Field: "HTMLBody", FS: fs}, nil
	case base.FormatText:
		return &BodyExporter{Format: format, Field: "Body", FS: fs}, nil
	case base.FormatRTF:
		return &BodyExporter{Format: format, Field: "RTFBody", FS: fs}, nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// MessageExporter persists the complete item, attachments included, by
// delegating to the item's own save capability.
type MessageExporter struct{}

func (e *MessageExporter) Extension() string { return string(base.FormatMessage) }

func (e *MessageExporter) RequiredFields() []string { return []string{"Subject"} }

func (e *MessageExporter) SuffixStyle() pathname.SuffixStyle { return pathname.SuffixTilde }

func (e *MessageExporter) Export(ctx context.Context, item base.Item, path string) error {
	if err := item.SaveAs(path); err != nil {
		return errors.Wrapf(err, "saving item to %q", path)
	}
	return nil
}

// BodyExporter writes a single body variant verbatim. No header metadata,
// no attachments.
type BodyExporter struct {
	Format base.Format
	Field  string
	FS     utils.FileManager
}

func (e *BodyExporter) Extension() string { return string(e.Format) }

func (e *BodyExporter) RequiredFields() []string { return []string{e.Field} }

func (e *BodyExporter) SuffixStyle() pathname.SuffixStyle { return pathname.SuffixParens }

func (e *BodyExporter) Export(ctx context.Context, item base.Item, path string) error {
	value, err := item.Field(e.Field)
	if err != nil {
		return errors.Wrapf(err, "reading %s", e.Field)
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("field %s has unexpected type %T", e.Field, value)
	}

	if err := e.FS.WriteFile(path, data, os.FileMode(0644)); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	return nil
}
