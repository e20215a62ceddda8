package imapsource

import (
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/utils"
)

// folder is one node of the mailbox tree. name keeps the server's native
// delimiter; FullPath normalizes to "/".
type folder struct {
	src        *Source
	name       string
	delimiter  string
	selectable bool
	children   []*folder
}

func (f *folder) FullPath() string {
	if f.delimiter == "" || f.delimiter == "/" {
		return f.name
	}
	return strings.ReplaceAll(f.name, f.delimiter, "/")
}

func (f *folder) Children() ([]base.Folder, error) {
	out := make([]base.Folder, len(f.children))
	for i, c := range f.children {
		out[i] = c
	}
	return out, nil
}

// Items fetches the folder's messages. A non-empty filter is applied once,
// server-side, as a text SEARCH restriction.
func (f *folder) Items(filter string) ([]base.Item, error) {
	if !f.selectable {
		return nil, nil
	}

	status, err := f.src.client.Select(f.name, true)
	if err != nil {
		return nil, errors.Wrapf(err, "selecting mailbox %q", f.name)
	}
	if status.Messages == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	if filter != "" {
		criteria := imap.NewSearchCriteria()
		criteria.Text = []string{filter}
		nums, err := f.src.client.Search(criteria)
		if err != nil {
			return nil, errors.Wrapf(err, "searching mailbox %q", f.name)
		}
		if len(nums) == 0 {
			return nil, nil
		}
		seqSet.AddNum(nums...)
	} else {
		seqSet.AddRange(1, status.Messages)
	}

	section := &imap.BodySectionName{Peek: true}
	fetchItems := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- f.src.client.Fetch(seqSet, fetchItems, messages)
	}()

	items := []base.Item{}
	for msg := range messages {
		it, err := f.src.newItem(msg, section)
		if err != nil {
			f.src.logger.Warn("dropping unreadable message",
				slog.String("mailbox", f.name),
				slog.Any("error", utils.WrapError(err)),
			)
			continue
		}
		items = append(items, it)
	}

	if err := <-done; err != nil {
		return nil, errors.Wrapf(err, "fetching from mailbox %q", f.name)
	}

	return items, nil
}

func readLiteral(literal imap.Literal) ([]byte, error) {
	if literal == nil {
		return nil, errors.New("server returned no body section")
	}
	return io.ReadAll(literal)
}
