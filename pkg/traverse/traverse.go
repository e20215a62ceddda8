// Package traverse walks a folder tree in pre-order and exports every
// retained item, mirroring the folder hierarchy under the output root.
// Failures are per-item or per-folder; a run only aborts when the output
// root itself cannot be resolved.
package traverse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/export"
	"github.com/harbormail/mailexport/pkg/pathname"
	"github.com/harbormail/mailexport/pkg/pattern"
	"github.com/harbormail/mailexport/pkg/utils"
	"github.com/harbormail/mailexport/pkg/validate"
)

// unsafePathChars are replaced with "_" in file and directory names.
var unsafePathChars = regexp.MustCompile(`[\\/:*?"<>|[:cntrl:]]`)

// Request is one immutable export invocation.
type Request struct {
	Folders    []base.Folder
	OutputRoot string

	// Pattern is the filename template; empty means base.DefaultPattern.
	Pattern string
	Format  base.Format

	// Filter is an optional server-side restriction, applied once per folder.
	Filter string

	// IncludeClasses and ExcludeClasses hold short item-class display names
	// ("Mail", "Contact"). An item matching ExcludeClasses, or not matching
	// a non-empty IncludeClasses, is excluded, which is not a failure.
	IncludeClasses []string
	ExcludeClasses []string

	ShowProgress bool
	DryRun       bool

	// Skipped, when non-nil, accumulates an audit record per item that
	// failed validation, path resolution or persistence.
	Skipped *[]base.SkipRecord
}

// Summary totals one export run.
type Summary struct {
	Exported int
	Excluded int
	Skipped  int
	Folders  int
}

type Traverser struct {
	logger  *slog.Logger
	fs      utils.FileManager
	maxPath int
}

type Option func(*Traverser) error

func NewTraverser(opts ...Option) (*Traverser, error) {
	var t Traverser
	for _, opt := range opts {
		if err := opt(&t); err != nil {
			return nil, err
		}
	}

	if t.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if t.fs == nil {
		return nil, errors.New("requires file manager")
	}

	return &t, nil
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Traverser) error {
		t.logger = logger
		return nil
	}
}

func WithFileManager(fs utils.FileManager) Option {
	return func(t *Traverser) error {
		t.fs = fs
		return nil
	}
}

// WithMaxPath overrides the path-length ceiling (default base.DefaultMaxPath).
func WithMaxPath(maxPath int) Option {
	return func(t *Traverser) error {
		if maxPath <= 0 {
			return errors.New("max path must be positive")
		}
		t.maxPath = maxPath
		return nil
	}
}

// Export walks every folder in the request, items before subfolders, both in
// enumeration order. The worklist is explicit so hierarchy depth is bounded
// by the heap, not the call stack.
func (t *Traverser) Export(ctx context.Context, req Request) (Summary, error) {
	var sum Summary

	root, err := filepath.Abs(req.OutputRoot)
	if err != nil {
		return sum, errors.Wrapf(err, "resolving output root %q", req.OutputRoot)
	}

	exporter, err := export.ForFormat(req.Format, t.fs)
	if err != nil {
		return sum, err
	}

	pat := req.Pattern
	if pat == "" {
		pat = base.DefaultPattern
	}
	required := validate.Required(pattern.ReferencedFields(pat), exporter.RequiredFields())

	resolver := &pathname.Resolver{
		MaxPath: t.maxPath,
		Style:   exporter.SuffixStyle(),
		FS:      t.fs,
		Logger:  t.logger,
	}

	include := classSet(req.IncludeClasses)
	exclude := classSet(req.ExcludeClasses)

	// LIFO worklist; children pushed in reverse keep enumeration order.
	stack := make([]base.Folder, 0, len(req.Folders))
	for i := len(req.Folders) - 1; i >= 0; i-- {
		stack = append(stack, req.Folders[i])
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sum.Folders++

		// An unrecognized folder is skipped with its whole subtree;
		// siblings continue.
		if err := t.exportFolder(ctx, folder, root, pat, required, resolver, exporter, include, exclude, req, &sum); err != nil {
			continue
		}

		children, err := folder.Children()
		if err != nil {
			t.logger.Error("skipping subfolders of unrecognized folder",
				slog.String("folder", folder.FullPath()),
				slog.Any("error", utils.WrapError(err)),
			)
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	return sum, nil
}

func (t *Traverser) exportFolder(
	ctx context.Context,
	folder base.Folder,
	root, pat string,
	required []string,
	resolver *pathname.Resolver,
	exporter export.Exporter,
	include, exclude map[string]bool,
	req Request,
	sum *Summary,
) error {
	folderPath := folder.FullPath()

	items, err := folder.Items(req.Filter)
	if err != nil {
		t.logger.Error("skipping unrecognized folder",
			slog.String("folder", folderPath),
			slog.Any("error", utils.WrapError(err)),
		)
		return err
	}

	var bar *progressbar.ProgressBar
	if req.ShowProgress && len(items) > 0 {
		bar = progressbar.NewOptions(len(items),
			progressbar.OptionSetDescription(folderPath),
			progressbar.OptionSetWriter(os.Stderr),
		)
	}

	outDir := outputDir(root, folderPath)

	// Created lazily so folders whose items are all filtered out leave no
	// empty directory behind.
	dirReady := false

	for _, item := range items {
		if ctx.Err() != nil {
			return nil
		}

		if bar != nil {
			bar.Add(1) //nolint:errcheck
		}

		if class, excluded := excludedClass(item, include, exclude); excluded {
			sum.Excluded++
			t.logger.Debug("excluding item by class",
				slog.String("folder", folderPath),
				slog.String("class", class),
			)
			continue
		}

		if missing := validate.Missing(item, required); len(missing) > 0 {
			t.skip(req, sum, item, folderPath,
				fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
			continue
		}

		name, err := pattern.Expand(pat, item)
		if err != nil {
			t.skip(req, sum, item, folderPath, fmt.Sprintf("expanding pattern: %v", err))
			continue
		}
		name = sanitize(name)

		if !dirReady && !req.DryRun {
			if err := t.fs.MkdirAll(outDir, os.FileMode(0755)); err != nil {
				t.logger.Error("cannot create output directory, abandoning folder",
					slog.String("directory", outDir),
					slog.Any("error", utils.WrapError(err)),
				)
				t.skip(req, sum, item, folderPath, fmt.Sprintf("creating %q: %v", outDir, err))
				// Subfolders are still attempted; each computes its own
				// target directory.
				return nil
			}
			dirReady = true
		}

		path, err := resolver.Resolve(outDir, name, exporter.Extension())
		if err != nil {
			t.skip(req, sum, item, folderPath, fmt.Sprintf("resolving path: %v", err))
			continue
		}

		if req.DryRun {
			sum.Exported++
			t.logger.Info("dry run: would export item", slog.String("path", path))
			continue
		}

		if err := exporter.Export(ctx, item, path); err != nil {
			t.skip(req, sum, item, folderPath, fmt.Sprintf("persisting item: %v", err))
			continue
		}

		sum.Exported++
		t.logger.Debug("exported item",
			slog.String("folder", folderPath),
			slog.String("path", path),
		)
	}

	return nil
}

func (t *Traverser) skip(req Request, sum *Summary, item base.Item, folder, reason string) {
	sum.Skipped++
	t.logger.Warn("skipping item",
		slog.String("folder", folder),
		slog.String("reason", reason),
	)
	if req.Skipped != nil {
		*req.Skipped = append(*req.Skipped, base.SkipRecord{Item: item, Reason: reason})
	}
}

// excludedClass applies the include/exclude class sets to the item's Class
// field. Items without a Class only fall out when a non-empty include set is
// in force.
func excludedClass(item base.Item, include, exclude map[string]bool) (string, bool) {
	class := ""
	if item.HasField("Class") {
		if v, err := item.Field("Class"); err == nil {
			if ev, ok := v.(base.EnumValue); ok {
				class = pattern.ClassName(ev)
			} else {
				class = fmt.Sprint(v)
			}
		}
	}

	key := strings.ToLower(class)
	if len(exclude) > 0 && exclude[key] {
		return class, true
	}
	if len(include) > 0 && !include[key] {
		return class, true
	}
	return class, false
}

func classSet(classes []string) map[string]bool {
	if len(classes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(classes))
	for _, c := range classes {
		set[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return set
}

// outputDir mirrors the folder's display path under the output root, one
// sanitized directory per path segment.
func outputDir(root, folderPath string) string {
	dir := root
	for _, segment := range strings.Split(folderPath, "/") {
		if segment == "" {
			continue
		}
		dir = filepath.Join(dir, sanitize(segment))
	}
	return dir
}

func sanitize(name string) string {
	name = unsafePathChars.ReplaceAllString(name, "_")
	name = strings.TrimRight(name, " .")
	if name == "" {
		return "untitled"
	}
	return name
}
