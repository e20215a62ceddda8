package base

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
)

const (
	// DefaultPattern names exported files by sender and subject.
	DefaultPattern = "FROM= %SenderName% SUBJECT= %Subject%"

	// DefaultMaxPath is the path-length ceiling (terminator included)
	// inherited from the most restrictive target filesystem.
	DefaultMaxPath = 260

	ServiceName = "mailexport"
)

// FieldAccessor is the capability interface for records with a dynamic set
// of named fields. Concrete item types implement it; the export core is
// generic over this capability, never over a concrete type hierarchy.
type FieldAccessor interface {
	Field(name string) (interface{}, error)
	HasField(name string) bool
	FieldNames() []string
}

// Item is a single mail-like record. SaveAs persists the complete item,
// attachments included, in the source provider's native serialization.
type Item interface {
	FieldAccessor
	SaveAs(path string) error
}

// Folder is a container of items and child folders, forming a tree.
// The hierarchy is assumed acyclic and finite.
type Folder interface {
	// FullPath is the display path of the folder, segments joined by "/".
	FullPath() string
	// Items enumerates the folder's immediate items. A non-empty filter is
	// applied server-side, once per folder.
	Items(filter string) ([]Item, error)
	// Children enumerates the folder's immediate subfolders.
	Children() ([]Folder, error)
}

// EnumValue is a member of a fixed closed set of symbolic statuses
// (sensitivity, importance, item class). Enum is the enumeration's name,
// which may differ from the field the value lives on.
type EnumValue struct {
	Enum string
	Name string
}

func (v EnumValue) String() string { return v.Name }

// SkipRecord is an audit entry for an item that could not be processed.
// Intentional exclusions (class filters) never produce one.
type SkipRecord struct {
	Item   Item
	Reason string
}

// Format selects the export representation.
type Format string

const (
	FormatMessage Format = "eml"
	FormatHTML    Format = "html"
	FormatText    Format = "txt"
	FormatRTF     Format = "rtf"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eml", "msg", "message":
		return FormatMessage, nil
	case "html":
		return FormatHTML, nil
	case "txt", "text":
		return FormatText, nil
	case "rtf":
		return FormatRTF, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Client is an interface to abstract the go-imap client methods used.
type Client interface {
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Login(username string, password string) error
	Logout() error
	Search(criteria *imap.SearchCriteria) (seqNums []uint32, err error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	State() imap.ConnState
}
