package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/emersion/go-imap/client"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/harbormail/mailexport/internal/archive"
	"github.com/harbormail/mailexport/internal/config"
	"github.com/harbormail/mailexport/internal/credstore"
	"github.com/harbormail/mailexport/internal/imapsource"
	"github.com/harbormail/mailexport/pkg/base"
	"github.com/harbormail/mailexport/pkg/traverse"
	"github.com/harbormail/mailexport/pkg/utils"
)

const defaultEnvFile = ".env"

var tracer oteltrace.Tracer = otel.Tracer(base.ServiceName)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mailexport",
		Usage: "export mail folders to files with collision-free names",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "connect with the credentials stored under `NAME`",
			},
		},
		Commands: []*cli.Command{
			foldersCommand(),
			exportCommand(),
			credsCommand(),
		},
	}
}

// folderSource is the slice of the mailbox provider the commands need.
type folderSource interface {
	Login() error
	Logout() error
	Folders() ([]base.Folder, error)
	FolderByPath(path string) (base.Folder, error)
}

// connect dials the IMAP server and logs in, using either a stored credential
// environment or the MAILEXPORT_* variables.
func connect(ctx context.Context, envName string, logger *slog.Logger, fs utils.FileManager) (*imapsource.Source, func(), error) {
	if err := loadEnvFile(); err != nil {
		return nil, nil, err
	}

	var addr, user, pass string
	if envName != "" {
		dir, err := config.CredentialDir()
		if err != nil {
			return nil, nil, err
		}
		store, err := credstore.Open(dir)
		if err != nil {
			return nil, nil, err
		}
		creds, err := store.Lookup(envName)
		if err != nil {
			return nil, nil, err
		}
		addr, user, pass = creds.Host, creds.Username, creds.Password
	} else {
		imapEnv, err := config.IMAPEnvFromEnv()
		if err != nil {
			return nil, nil, err
		}
		addr, user, pass = imapEnv.Addr(), imapEnv.User, imapEnv.Pass
	}

	conn, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dialing %q", addr)
	}
	logger.Info("Connected", slog.String("addr", addr))

	src, err := imapsource.New(
		imapsource.WithClient(conn),
		imapsource.WithLogger(logger),
		imapsource.WithCtx(ctx),
		imapsource.WithFileManager(fs),
		imapsource.WithAuth(user, pass),
	)
	if err != nil {
		return nil, nil, err
	}

	if err := src.Login(); err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := src.Logout(); err != nil {
			logger.Warn("Failed to logout", slog.Any("error", utils.WrapError(err)))
		}
	}
	return src, cleanup, nil
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}

// folderNode is the JSON shape of one folder in the `folders` dump.
type folderNode struct {
	Path     string       `json:"path"`
	Children []folderNode `json:"children,omitempty"`
}

func treeNodes(folders []base.Folder) ([]folderNode, error) {
	nodes := make([]folderNode, 0, len(folders))
	for _, f := range folders {
		children, err := f.Children()
		if err != nil {
			return nil, errors.Wrapf(err, "listing children of %q", f.FullPath())
		}
		childNodes, err := treeNodes(children)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, folderNode{Path: f.FullPath(), Children: childNodes})
	}
	return nodes, nil
}

func printTree(w io.Writer, nodes []folderNode, depth int) {
	for _, n := range nodes {
		name := n.Path
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)
		printTree(w, n.Children, depth+1)
	}
}

func foldersCommand() *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "list the account's folder tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "json",
				Usage: "write the tree as JSON to `FILE` instead of printing it",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			logger := utils.NewLogger()

			shutdown, err := utils.SetupOTelSDK(ctx)
			if err != nil {
				return err
			}
			defer shutdown(ctx) //nolint:errcheck

			ctx, span := tracer.Start(ctx, "folders")
			defer span.End()

			fs := &utils.OSFileManager{}
			src, cleanup, err := connect(ctx, c.String("env"), logger, fs)
			if err != nil {
				return err
			}
			defer cleanup()

			return listFolders(src, fs, c.String("json"), c.App.Writer)
		},
	}
}

func listFolders(src folderSource, fs utils.FileManager, jsonPath string, out io.Writer) error {
	roots, err := src.Folders()
	if err != nil {
		return err
	}

	nodes, err := treeNodes(roots)
	if err != nil {
		return err
	}

	if jsonPath != "" {
		encoded, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding folder tree")
		}
		return fs.WriteFile(jsonPath, encoded, os.FileMode(0644))
	}

	printTree(out, nodes, 0)
	return nil
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "export folders to files under an output root",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "folder",
				Aliases: []string{"f"},
				Usage:   "folder display path to export (repeatable; default all)",
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "output root directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "filename pattern with %Field% placeholders",
				Value: base.DefaultPattern,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "export format: eml, html, txt or rtf",
				Value: string(base.FormatMessage),
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "server-side text filter, applied once per folder",
			},
			&cli.StringSliceFlag{
				Name:  "include-class",
				Usage: "only export items of this class (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-class",
				Usage: "never export items of this class (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "show a per-folder progress bar",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report what would be exported without writing anything",
			},
			&cli.StringFlag{
				Name:  "skip-report",
				Usage: "write skipped-item records as JSON to `FILE`",
			},
			&cli.BoolFlag{
				Name:  "archive",
				Usage: "upload the finished export tree to S3 storage",
			},
			&cli.StringFlag{
				Name:  "archive-prefix",
				Usage: "object key prefix for the archive upload",
			},
		},
		Action: exportAction,
	}
}

func exportAction(c *cli.Context) error {
	ctx := c.Context
	logger := utils.NewLogger()

	shutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		return err
	}
	defer shutdown(ctx) //nolint:errcheck

	ctx, span := tracer.Start(ctx, "export")
	defer span.End()

	format, err := base.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	maxPath, err := config.MaxPath()
	if err != nil {
		return err
	}

	fs := &utils.OSFileManager{}
	src, cleanup, err := connect(ctx, c.String("env"), logger, fs)
	if err != nil {
		return err
	}
	defer cleanup()

	folders, err := resolveFolders(src, c.StringSlice("folder"))
	if err != nil {
		return err
	}

	traverser, err := traverse.NewTraverser(
		traverse.WithLogger(logger),
		traverse.WithFileManager(fs),
		traverse.WithMaxPath(maxPath),
	)
	if err != nil {
		return err
	}

	skipped := []base.SkipRecord{}
	req := traverse.Request{
		Folders:        folders,
		OutputRoot:     c.String("out"),
		Pattern:        c.String("pattern"),
		Format:         format,
		Filter:         c.String("filter"),
		IncludeClasses: c.StringSlice("include-class"),
		ExcludeClasses: c.StringSlice("exclude-class"),
		ShowProgress:   c.Bool("progress"),
		DryRun:         c.Bool("dry-run"),
		Skipped:        &skipped,
	}

	sum, err := traverser.Export(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Folders visited: %d\nExported: %d\nExcluded: %d\nSkipped: %d\n",
		sum.Folders, sum.Exported, sum.Excluded, sum.Skipped)

	if path := c.String("skip-report"); path != "" {
		if err := writeSkipReport(fs, path, skipped); err != nil {
			return err
		}
	}

	if c.Bool("archive") && !c.Bool("dry-run") {
		s3Env, err := config.S3EnvFromEnv()
		if err != nil {
			return err
		}
		uploader, err := archive.New(archive.Config{
			Endpoint:  s3Env.Endpoint,
			Region:    s3Env.Region,
			Bucket:    s3Env.Bucket,
			AccessKey: s3Env.Key,
			SecretKey: s3Env.Secret,
			Prefix:    c.String("archive-prefix"),
		}, logger)
		if err != nil {
			return err
		}
		count, err := uploader.UploadTree(ctx, c.String("out"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Archived: %d\n", count)
	}

	return nil
}

func resolveFolders(src folderSource, paths []string) ([]base.Folder, error) {
	if len(paths) == 0 {
		return src.Folders()
	}

	folders := make([]base.Folder, 0, len(paths))
	for _, p := range paths {
		f, err := src.FolderByPath(p)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, nil
}

// skipEntry is the JSON shape of one skip-report line. The label is the
// item's subject when it has one.
type skipEntry struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

func writeSkipReport(fs utils.FileManager, path string, skipped []base.SkipRecord) error {
	entries := make([]skipEntry, 0, len(skipped))
	for _, rec := range skipped {
		label := "(unknown)"
		if rec.Item != nil && rec.Item.HasField("Subject") {
			if v, err := rec.Item.Field("Subject"); err == nil {
				label = fmt.Sprint(v)
			}
		}
		entries = append(entries, skipEntry{Item: label, Reason: rec.Reason})
	}

	encoded, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding skip report")
	}
	return fs.WriteFile(path, encoded, os.FileMode(0644))
}

func credsCommand() *cli.Command {
	return &cli.Command{
		Name:  "creds",
		Usage: "manage stored credential environments",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "store credentials for an environment",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "IMAP `HOST:PORT`", Required: true},
					&cli.StringFlag{Name: "user", Usage: "login username", Required: true},
					&cli.StringFlag{Name: "password", Usage: "login password (prompted when omitted)"},
				},
				Action: func(c *cli.Context) error {
					store, name, err := openStore(c)
					if err != nil {
						return err
					}
					pass := c.String("password")
					if pass == "" {
						pass, err = promptPassword(c.App.Writer, os.Stdin)
						if err != nil {
							return err
						}
					}
					return store.Save(name, credstore.Credentials{
						Host:     c.String("host"),
						Username: c.String("user"),
						Password: pass,
					})
				},
			},
			{
				Name:      "show",
				Usage:     "show the credentials stored for an environment",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reveal", Usage: "print the password too"},
				},
				Action: func(c *cli.Context) error {
					store, name, err := openStore(c)
					if err != nil {
						return err
					}
					creds, err := store.Lookup(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "host: %s\nuser: %s\n", creds.Host, creds.Username)
					if c.Bool("reveal") {
						fmt.Fprintf(c.App.Writer, "password: %s\n", creds.Password)
					}
					return nil
				},
			},
			{
				Name:      "rm",
				Usage:     "delete the credentials stored for an environment",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					store, name, err := openStore(c)
					if err != nil {
						return err
					}
					return store.Delete(name)
				},
			},
			{
				Name:  "list",
				Usage: "list stored environment names",
				Action: func(c *cli.Context) error {
					dir, err := config.CredentialDir()
					if err != nil {
						return err
					}
					store, err := credstore.Open(dir)
					if err != nil {
						return err
					}
					envs, err := store.List()
					if err != nil {
						return err
					}
					for _, env := range envs {
						fmt.Fprintln(c.App.Writer, env)
					}
					return nil
				},
			},
		},
	}
}

func openStore(c *cli.Context) (*credstore.Store, string, error) {
	name := c.Args().First()
	if name == "" {
		return nil, "", errors.New("requires environment name")
	}

	dir, err := config.CredentialDir()
	if err != nil {
		return nil, "", err
	}
	store, err := credstore.Open(dir)
	if err != nil {
		return nil, "", err
	}
	return store, name, nil
}

func promptPassword(out io.Writer, in io.Reader) (string, error) {
	fmt.Fprint(out, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	pass := strings.TrimRight(line, "\r\n")
	if pass == "" {
		return "", errors.New("requires password")
	}
	return pass, nil
}
