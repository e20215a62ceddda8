package traverse_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/mock"
	"github.com/harbormail/mailexport/pkg/traverse"
)

func newTraverser(t *testing.T, fs *mock.MockFileManager) *traverse.Traverser {
	t.Helper()
	tr, err := traverse.NewTraverser(
		traverse.WithLogger(mock.SetupLogger(t)),
		traverse.WithFileManager(fs),
	)
	require.NoError(t, err)
	return tr
}

func mailItem(subject, sender string) *mock.MockItem {
	return mock.NewMockItem(map[string]interface{}{
		"Subject":    subject,
		"SenderName": sender,
		"Body":       "body of " + subject,
		"Class":      base.EnumValue{Enum: "ItemClass", Name: "olMail"},
	})
}

// savingItem persists through the shared file manager so later resolver
// probes observe the write.
type savingItem struct {
	*mock.MockItem
	fs *mock.MockFileManager
}

func (s *savingItem) SaveAs(path string) error {
	return s.fs.WriteFile(path, []byte("raw message"), os.FileMode(0644))
}

func TestNewTraverser(t *testing.T) {
	tests := []struct {
		name    string
		options []traverse.Option
		wantErr bool
	}{
		{
			name: "valid configuration",
			options: []traverse.Option{
				traverse.WithLogger(mock.SetupLogger(t)),
				traverse.WithFileManager(mock.NewMockFileManager()),
			},
			wantErr: false,
		},
		{
			name: "missing logger",
			options: []traverse.Option{
				traverse.WithFileManager(mock.NewMockFileManager()),
			},
			wantErr: true,
		},
		{
			name: "missing file manager",
			options: []traverse.Option{
				traverse.WithLogger(mock.SetupLogger(t)),
			},
			wantErr: true,
		},
		{
			name: "invalid max path",
			options: []traverse.Option{
				traverse.WithLogger(mock.SetupLogger(t)),
				traverse.WithFileManager(mock.NewMockFileManager()),
				traverse.WithMaxPath(-1),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := traverse.NewTraverser(tt.options...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTraverser() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExportPreOrder(t *testing.T) {
	i1 := mailItem("first", "Ann")
	i2 := mailItem("second", "Ben")

	tree := &mock.MockFolder{
		Path:     "A",
		ItemList: []base.Item{i1},
		Subfolders: []base.Folder{
			&mock.MockFolder{Path: "A/B", ItemList: []base.Item{i2}},
		},
	}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{tree},
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Exported)
	assert.Equal(t, 2, sum.Folders)

	want := []string{
		"mkdir " + filepath.Join("/out", "A"),
		"write " + filepath.Join("/out", "A", "first.txt"),
		"mkdir " + filepath.Join("/out", "A", "B"),
		"write " + filepath.Join("/out", "A", "B", "second.txt"),
	}
	assert.Equal(t, want, fs.Ops)
}

func TestExportSiblingOrder(t *testing.T) {
	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	folders := []base.Folder{
		&mock.MockFolder{Path: "One", ItemList: []base.Item{mailItem("a", "x")}},
		&mock.MockFolder{Path: "Two", ItemList: []base.Item{mailItem("b", "y")}},
		&mock.MockFolder{Path: "Three", ItemList: []base.Item{mailItem("c", "z")}},
	}

	_, err := tr.Export(context.Background(), traverse.Request{
		Folders:    folders,
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join("/out", "One"),
		filepath.Join("/out", "Two"),
		filepath.Join("/out", "Three"),
	}, fs.Mkdirs)
}

func TestExportClassFilter(t *testing.T) {
	contact := mock.NewMockItem(map[string]interface{}{
		"Subject":    "address card",
		"SenderName": "Ann",
		"Body":       "vcard",
		"Class":      base.EnumValue{Enum: "ItemClass", Name: "olContact"},
	})

	folder := &mock.MockFolder{
		Path:     "INBOX",
		ItemList: []base.Item{mailItem("hello", "Ann"), contact},
	}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	var skips []base.SkipRecord
	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:        []base.Folder{folder},
		OutputRoot:     "/out",
		Pattern:        "%Subject%",
		Format:         base.FormatText,
		IncludeClasses: []string{"Mail"},
		Skipped:        &skips,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Exported)
	assert.Equal(t, 1, sum.Excluded)
	assert.Equal(t, 0, sum.Skipped)
	assert.Empty(t, skips, "an exclusion is not a failure")
	assert.Contains(t, fs.Writers, filepath.Join("/out", "INBOX", "hello.txt"))
}

func TestExportExcludeClasses(t *testing.T) {
	folder := &mock.MockFolder{
		Path:     "INBOX",
		ItemList: []base.Item{mailItem("keep", "Ann"), mailItem("drop", "Ben")},
	}
	// Both are Mail; excluding Mail drops everything.
	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:        []base.Folder{folder},
		OutputRoot:     "/out",
		Format:         base.FormatText,
		ExcludeClasses: []string{"Mail"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Exported)
	assert.Equal(t, 2, sum.Excluded)
	assert.Empty(t, fs.Mkdirs, "no directory for a fully filtered folder")
}

func TestExportSkipRecordOnMissingField(t *testing.T) {
	broken := mock.NewMockItem(map[string]interface{}{
		"SenderName": "Ann",
		"Body":       "no subject here",
	})
	folder := &mock.MockFolder{
		Path:     "INBOX",
		ItemList: []base.Item{broken, mailItem("fine", "Ben")},
	}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	var skips []base.SkipRecord
	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
		Skipped:    &skips,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Exported)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, skips, 1)
	assert.Same(t, broken, skips[0].Item)
	assert.Contains(t, skips[0].Reason, "Subject")
}

func TestExportDuplicateNamesGetSuffix(t *testing.T) {
	fs := mock.NewMockFileManager()

	first := &savingItem{MockItem: mailItem("Hi", "Bob"), fs: fs}
	second := &savingItem{MockItem: mailItem("Hi", "Bob"), fs: fs}
	folder := &mock.MockFolder{Path: "INBOX", ItemList: []base.Item{first, second}}

	tr := newTraverser(t, fs)
	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Format:     base.FormatMessage,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Exported)

	dir := filepath.Join("/out", "INBOX")
	assert.Contains(t, fs.Writers, filepath.Join(dir, "FROM= Bob SUBJECT= Hi.eml"))
	assert.Contains(t, fs.Writers, filepath.Join(dir, "FROM= Bob SUBJECT= Hi~1.eml"))
}

func TestExportUnrecognizedFolderSkipsSubtree(t *testing.T) {
	orphan := &mock.MockFolder{Path: "Bad/Child", ItemList: []base.Item{mailItem("lost", "x")}}
	bad := &mock.MockFolder{
		Path:       "Bad",
		ItemsErr:   errors.New("no Items collection"),
		Subfolders: []base.Folder{orphan},
	}
	good := &mock.MockFolder{Path: "Good", ItemList: []base.Item{mailItem("kept", "y")}}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	var skips []base.SkipRecord
	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{bad, good},
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
		Skipped:    &skips,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Folders, "subtree of the unrecognized folder is not visited")
	assert.Equal(t, 1, sum.Exported)
	assert.Empty(t, skips, "a folder failure is not an item skip record")
	assert.Contains(t, fs.Writers, filepath.Join("/out", "Good", "kept.txt"))
	assert.NotContains(t, fs.Writers, filepath.Join("/out", "Bad", "Child", "lost.txt"))
}

func TestExportDirCreationFailureAbandonsFolderNotChildren(t *testing.T) {
	child := &mock.MockFolder{Path: "A/B"}
	folder := &mock.MockFolder{
		Path:       "A",
		ItemList:   []base.Item{mailItem("one", "x"), mailItem("two", "y")},
		Subfolders: []base.Folder{child},
	}

	fs := mock.NewMockFileManager()
	fs.MkdirErr = errors.New("permission denied")
	tr := newTraverser(t, fs)

	var skips []base.SkipRecord
	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
		Skipped:    &skips,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Folders, "children are still attempted")
	assert.Equal(t, 0, sum.Exported)
	require.Len(t, skips, 1, "only the item that triggered the mkdir is recorded")
	assert.Contains(t, skips[0].Reason, "permission denied")
}

func TestExportFilterPassedOncePerFolder(t *testing.T) {
	folder := &mock.MockFolder{Path: "INBOX", ItemList: []base.Item{mailItem("a", "x")}}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	_, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Format:     base.FormatText,
		Filter:     "SUBJECT report",
	})
	require.NoError(t, err)
	assert.Equal(t, "SUBJECT report", folder.LastFilter)
}

func TestExportDryRun(t *testing.T) {
	folder := &mock.MockFolder{
		Path:     "INBOX",
		ItemList: []base.Item{mailItem("a", "x"), mailItem("b", "y")},
	}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	sum, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Exported)
	assert.Empty(t, fs.Ops, "a dry run must not touch the file system")
}

func TestExportCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	folder := &mock.MockFolder{Path: "INBOX", ItemList: []base.Item{mailItem("a", "x")}}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	_, err := tr.Export(ctx, traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Format:     base.FormatText,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fs.Ops)
}

func TestExportSanitizesNames(t *testing.T) {
	item := mock.NewMockItem(map[string]interface{}{
		"Subject": `re: budget/plans?`,
		"Body":    "x",
	})
	folder := &mock.MockFolder{Path: "Projects/2024", ItemList: []base.Item{item}}

	fs := mock.NewMockFileManager()
	tr := newTraverser(t, fs)

	_, err := tr.Export(context.Background(), traverse.Request{
		Folders:    []base.Folder{folder},
		OutputRoot: "/out",
		Pattern:    "%Subject%",
		Format:     base.FormatText,
	})
	require.NoError(t, err)
	assert.Contains(t, fs.Writers, filepath.Join("/out", "Projects", "2024", "re_ budget_plans_.txt"))
}
