// Package archive copies a finished export tree to S3-compatible storage.
// Object keys mirror the relative paths under the export root.
package archive

import (
	"context"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/harbormail/mailexport/pkg/utils"
)

// Config carries the S3 connection details. Endpoint may point at any
// S3-compatible service; path-style addressing is always used.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// UploadAPI is the slice of the SDK's upload manager the archiver needs.
type UploadAPI interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type Uploader struct {
	api    UploadAPI
	bucket string
	prefix string
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("requires bucket")
	}
	if logger == nil {
		return nil, errors.New("requires slogger")
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating S3 session")
	}

	return NewWithClient(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix, logger), nil
}

func NewWithClient(api UploadAPI, bucket, prefix string, logger *slog.Logger) *Uploader {
	return &Uploader{api: api, bucket: bucket, prefix: prefix, logger: logger}
}

// UploadTree walks root and uploads every regular file, returning the number
// of objects stored. The first failed upload aborts the walk.
func (u *Uploader) UploadTree(ctx context.Context, root string) (int, error) {
	uploaded := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := path.Join(u.prefix, filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return errors.Wrapf(err, "opening %q", p)
		}
		defer f.Close()

		input := &s3manager.UploadInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(key),
			Body:   f,
		}
		if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
			input.ContentType = aws.String(ct)
		}

		if _, err := u.api.UploadWithContext(ctx, input); err != nil {
			return errors.Wrapf(err, "uploading %q", key)
		}

		u.logger.Info("Archived object", slog.String("key", key))
		uploaded++
		return nil
	})
	if err != nil {
		u.logger.Error("Archive upload failed", slog.Any("error", utils.WrapError(err)))
		return uploaded, err
	}

	return uploaded, nil
}
