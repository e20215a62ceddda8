package imapsource

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	message "github.com/emersion/go-message"
	"github.com/pkg/errors"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/utils"
)

// item is a fetched message with a dynamic field set. Body variants are only
// present as fields when the corresponding MIME part exists, which is what
// the validator keys on.
type item struct {
	fields map[string]interface{}
	raw    []byte
	fs     utils.FileManager
}

func (src *Source) newItem(msg *imap.Message, section *imap.BodySectionName) (base.Item, error) {
	raw, err := readLiteral(msg.GetBody(section))
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"ReceivedTime": msg.InternalDate,
		"Class":        base.EnumValue{Enum: "ItemClass", Name: "olMail"},
	}

	if env := msg.Envelope; env != nil {
		fields["Subject"] = env.Subject
		fields["MessageID"] = env.MessageId
		if len(env.From) > 0 {
			fields["SenderName"] = senderName(env.From[0])
			fields["SenderEmail"] = env.From[0].Address()
		}
		fields["To"] = joinAddresses(env.To)
		fields["Cc"] = joinAddresses(env.Cc)
	}

	bodyFields(raw, fields)

	return &item{fields: fields, raw: raw, fs: src.fs}, nil
}

func (it *item) Field(name string) (interface{}, error) {
	v, ok := it.fields[name]
	if !ok {
		return nil, errors.Errorf("no field %q", name)
	}
	return v, nil
}

func (it *item) HasField(name string) bool {
	_, ok := it.fields[name]
	return ok
}

func (it *item) FieldNames() []string {
	names := make([]string, 0, len(it.fields))
	for name := range it.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveAs persists the complete message, attachments included, in its raw
// RFC822 serialization.
func (it *item) SaveAs(path string) error {
	if err := it.fs.WriteFile(path, it.raw, os.FileMode(0644)); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	return nil
}

func senderName(addr *imap.Address) string {
	if addr.PersonalName != "" {
		return addr.PersonalName
	}
	return addr.MailboxName
}

func joinAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.Address())
	}
	return strings.Join(parts, ", ")
}

// bodyFields walks the message's MIME structure and records one field per
// body variant found: Body (text/plain), HTMLBody (text/html) and RTFBody
// (text/rtf or application/rtf, kept as raw bytes).
func bodyFields(raw []byte, fields map[string]interface{}) {
	m, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return
	}
	collectBodies(m, fields)
}

func collectBodies(m *message.Entity, fields map[string]interface{}) {
	if mr := m.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return
			}
			collectBodies(p, fields)
		}
	}

	t, _, err := m.Header.ContentType()
	if err != nil {
		return
	}

	switch t {
	case "text/plain":
		if _, ok := fields["Body"]; !ok {
			if b, err := io.ReadAll(m.Body); err == nil {
				fields["Body"] = string(b)
			}
		}
	case "text/html":
		if _, ok := fields["HTMLBody"]; !ok {
			if b, err := io.ReadAll(m.Body); err == nil {
				fields["HTMLBody"] = string(b)
			}
		}
	case "text/rtf", "application/rtf":
		if _, ok := fields["RTFBody"]; !ok {
			if b, err := io.ReadAll(m.Body); err == nil {
				fields["RTFBody"] = b
			}
		}
	}
}
