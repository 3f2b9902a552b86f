package library

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
)

// descriptionMeta is the user metadata key holding a file's description.
const descriptionMeta = "Description"

// ObjectConfig holds S3-compatible storage settings.
type ObjectConfig struct {
	Endpoint        string // e.g. "minio:9000" or "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool

	Bucket string
	Prefix string // key prefix, e.g. "queries/"
}

// ObjectStore keeps query files in an S3-compatible bucket.
type ObjectStore struct {
	mc     *minio.Client
	cfg    ObjectConfig
	logger *log.Logger
}

// OpenObject connects to the bucket and creates it if it does not exist.
func OpenObject(ctx context.Context, cfg ObjectConfig, logger *log.Logger) (*ObjectStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeConfigInvalid, "invalid object store settings").
			WithOp("library.OpenObject").
			WithField("endpoint", cfg.Endpoint).
			Err()
	}

	s := &ObjectStore{mc: mc, cfg: cfg, logger: logger}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeLibraryRead, "failed to reach library bucket").
			WithOp("ObjectStore.ensureBucket").
			WithField("bucket", s.cfg.Bucket).
			Err()
	}
	if exists {
		return nil
	}
	if err := s.mc.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeLibraryWrite, "failed to create library bucket").
			WithOp("ObjectStore.ensureBucket").
			WithField("bucket", s.cfg.Bucket).
			Err()
	}
	return nil
}

func (s *ObjectStore) key(name string) string { return s.cfg.Prefix + name }

func (s *ObjectStore) folder() string { return s.cfg.Bucket + "/" + s.cfg.Prefix }

func (s *ObjectStore) info(name string, obj minio.ObjectInfo) FileInfo {
	return FileInfo{
		ID:          FileID(s.folder(), name),
		Name:        name,
		Description: metaValue(obj.UserMetadata, descriptionMeta),
		Modified:    obj.LastModified,
		Size:        obj.Size,
	}
}

// List returns every query file ordered by name. Descriptions require one
// stat per object.
func (s *ObjectStore) List(ctx context.Context) ([]FileInfo, error) {
	var out []FileInfo
	for obj := range s.mc.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: s.cfg.Prefix}) {
		if obj.Err != nil {
			return nil, qerrors.Wrap(obj.Err, qerrors.ErrCodeLibraryRead, "failed to list library bucket").
				WithOp("ObjectStore.List").
				Err()
		}
		name := strings.TrimPrefix(obj.Key, s.cfg.Prefix)
		if strings.Contains(name, "/") || !isQueryFile(name) {
			continue
		}
		stat, err := s.mc.StatObject(ctx, s.cfg.Bucket, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			stat = obj
		}
		out = append(out, s.info(name, stat))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the file named exactly name, if any.
func (s *ObjectStore) Find(ctx context.Context, name string) ([]FileInfo, error) {
	if ValidName(name) != nil {
		return nil, nil
	}
	stat, err := s.mc.StatObject(ctx, s.cfg.Bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, qerrors.Wrap(err, qerrors.ErrCodeLibraryRead, "failed to stat query file").
			WithOp("ObjectStore.Find").
			WithField("filename", name).
			Err()
	}
	return []FileInfo{s.info(name, stat)}, nil
}

// Exists reports whether a file named name exists.
func (s *ObjectStore) Exists(ctx context.Context, name string) (bool, error) {
	found, err := s.Find(ctx, name)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Load returns the file with the given ID.
func (s *ObjectStore) Load(ctx context.Context, id string) (*File, error) {
	files, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, info := range files {
		if info.ID != id {
			continue
		}
		obj, err := s.mc.GetObject(ctx, s.cfg.Bucket, s.key(info.Name), minio.GetObjectOptions{})
		if err != nil {
			return nil, qerrors.Wrap(err, qerrors.ErrCodeLibraryRead, "failed to open query file").
				WithOp("ObjectStore.Load").
				WithField("filename", info.Name).
				Err()
		}
		defer obj.Close()

		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, qerrors.Wrap(err, qerrors.ErrCodeLibraryRead, "failed to read query file").
				WithOp("ObjectStore.Load").
				WithField("filename", info.Name).
				Err()
		}
		return &File{FileInfo: info, Contents: string(data)}, nil
	}

	return nil, qerrors.Newf(qerrors.ErrCodeLibraryNotFound, "no query file with ID %s", id).
		WithOp("ObjectStore.Load").
		WithField("fileID", id).
		Err()
}

// Save uploads the file with its description as object metadata.
func (s *ObjectStore) Save(ctx context.Context, name, contents, description string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}

	opts := minio.PutObjectOptions{ContentType: "application/sql"}
	if description != "" {
		opts.UserMetadata = map[string]string{descriptionMeta: description}
	}
	data := []byte(contents)
	if _, err := s.mc.PutObject(ctx, s.cfg.Bucket, s.key(name), bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", qerrors.Wrap(err, qerrors.ErrCodeLibraryWrite, "failed to upload query file").
			WithOp("ObjectStore.Save").
			WithField("filename", name).
			Err()
	}

	id := FileID(s.folder(), name)
	s.logger.Library().Ctx(ctx).Info("query file saved",
		"filename", name,
		"file_id", id,
		"bucket", s.cfg.Bucket,
		"size", len(data),
	)
	return id, nil
}

func (s *ObjectStore) Close() error { return nil }

func metaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}
