// Package remote reads the public query library: an index.json listing plus
// one object per query, served from an S3 bucket.
package remote

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
)

// IndexKey is the name of the listing object under the prefix.
const IndexKey = "index.json"

// maxObjectSize bounds what a single remote read may return.
const maxObjectSize = 4 << 20

// Entry is one query listed in the index.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	FileName    string `json:"fileName"`
}

// Config holds the bucket location. Empty keys mean anonymous access.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // S3-compatible endpoint; empty for AWS
	AccessKey string
	SecretKey string
}

// ObjectGetter is the part of the S3 client the library uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Library reads the remote query library.
type Library struct {
	client ObjectGetter
	bucket string
	prefix string
	logger *log.Logger
}

// New creates a library over an existing client.
func New(client ObjectGetter, bucket, prefix string, logger *log.Logger) *Library {
	if logger == nil {
		logger = log.Default()
	}
	return &Library{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Open builds an S3 client from cfg and the default AWS configuration chain.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Library, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	} else {
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeConfigInvalid, "failed to load AWS config").
			WithOp("remote.Open").
			Err()
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, cfg.Prefix, logger), nil
}

// Index returns the listed queries.
func (l *Library) Index(ctx context.Context) ([]Entry, error) {
	data, err := l.get(ctx, IndexKey)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeRemoteFetch, "remote index is not valid JSON").
			WithOp("Library.Index").
			Err()
	}
	return entries, nil
}

// Load returns the query text of one listed file.
func (l *Library) Load(ctx context.Context, fileName string) (string, error) {
	if fileName == "" || strings.Contains(fileName, "/") || strings.Contains(fileName, "..") {
		return "", qerrors.InvalidInput("filename", "must be a plain file name").
			WithField("filename", fileName).
			Err()
	}

	data, err := l.get(ctx, fileName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Library) get(ctx context.Context, name string) ([]byte, error) {
	key := l.prefix + name

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		l.logger.Library().Ctx(ctx).Warn("remote library fetch failed",
			"bucket", l.bucket,
			"key", key,
			"error", err.Error(),
		)
		return nil, qerrors.Wrap(err, qerrors.ErrCodeRemoteFetch, "failed to fetch from remote library").
			WithOp("Library.get").
			WithField("key", key).
			Err()
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeRemoteFetch, "failed to read remote object").
			WithOp("Library.get").
			WithField("key", key).
			Err()
	}
	if len(data) > maxObjectSize {
		return nil, qerrors.New(qerrors.ErrCodeRemoteFetch, "remote object too large").
			WithOp("Library.get").
			WithField("key", key).
			Err()
	}
	return data, nil
}
