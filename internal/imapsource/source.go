// Package imapsource adapts an IMAP account to the export core's folder and
// item capabilities. Mailbox hierarchy comes from LIST, items from a
// read-only SELECT plus FETCH, and the optional restriction expression is
// pushed down as a server-side SEARCH.
package imapsource

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/utils"
)

type Source struct {
	client   base.Client
	logger   *slog.Logger
	ctx      context.Context
	fs       utils.FileManager
	username string
	password string
}

type Option func(*Source) error

func New(opts ...Option) (*Source, error) {
	var src Source
	for _, opt := range opts {
		if err := opt(&src); err != nil {
			return nil, err
		}
	}

	if src.client == nil {
		return nil, errors.New("requires client")
	}

	if src.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if src.ctx == nil {
		return nil, errors.New("requires ctx")
	}

	if src.fs == nil {
		return nil, errors.New("requires file manager")
	}

	return &src, nil
}

func WithClient(c base.Client) Option {
	return func(src *Source) error {
		src.client = c
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(src *Source) error {
		src.logger = logger
		return nil
	}
}

func WithCtx(ctx context.Context) Option {
	return func(src *Source) error {
		src.ctx = ctx
		return nil
	}
}

func WithFileManager(fs utils.FileManager) Option {
	return func(src *Source) error {
		src.fs = fs
		return nil
	}
}

func WithAuth(username, password string) Option {
	return func(src *Source) error {
		src.username = username
		src.password = password
		return nil
	}
}

// Login authenticates unless the session already is.
func (src *Source) Login() error {
	switch src.client.State() {
	case imap.AuthenticatedState, imap.SelectedState:
		src.logger.Info("Already authenticated")
		return nil
	default:
		if err := src.client.Login(src.username, src.password); err != nil {
			src.logger.ErrorContext(src.ctx, "Failed to login", slog.Any("error", utils.WrapError(err)))
			return errors.Wrap(err, "login")
		}
		src.logger.Info("Login success")
		return nil
	}
}

func (src *Source) Logout() error {
	return src.client.Logout()
}

// Folders lists every mailbox on the account and assembles the folder tree
// from the hierarchy delimiter. Roots and children come back sorted by name,
// independent of the server's listing order. Intermediate names the server
// never listed become non-selectable nodes.
func (src *Source) Folders() ([]base.Folder, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- src.client.List("", "*", mailboxes)
	}()

	infos := []*imap.MailboxInfo{}
	for m := range mailboxes {
		infos = append(infos, m)
	}

	if err := <-done; err != nil {
		src.logger.ErrorContext(src.ctx, err.Error(), slog.Any("error", utils.WrapError(err)))
		return nil, errors.Wrap(err, "listing mailboxes")
	}

	nodes := map[string]*folder{}
	roots := []*folder{}

	var node func(name, delimiter string) *folder
	node = func(name, delimiter string) *folder {
		if f, ok := nodes[name]; ok {
			return f
		}
		f := &folder{src: src, name: name, delimiter: delimiter}
		nodes[name] = f

		if delimiter != "" {
			if i := strings.LastIndex(name, delimiter); i > 0 {
				parent := node(name[:i], delimiter)
				parent.children = append(parent.children, f)
				return f
			}
		}
		roots = append(roots, f)
		return f
	}

	// Parents before children, independent of server listing order.
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	for _, info := range infos {
		f := node(info.Name, info.Delimiter)
		f.selectable = !hasAttr(info.Attributes, imap.NoSelectAttr)
	}

	out := make([]base.Folder, len(roots))
	for i, f := range roots {
		out[i] = f
	}
	return out, nil
}

// FolderByPath returns the folder whose display path matches, walking the
// tree from Folders.
func (src *Source) FolderByPath(path string) (base.Folder, error) {
	roots, err := src.Folders()
	if err != nil {
		return nil, err
	}

	want := strings.Trim(path, "/")
	stack := append([]base.Folder{}, roots...)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.FullPath() == want {
			return f, nil
		}
		children, err := f.Children()
		if err != nil {
			return nil, err
		}
		stack = append(stack, children...)
	}
	return nil, errors.Errorf("no folder named %q", path)
}

func hasAttr(attrs []string, want string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}
