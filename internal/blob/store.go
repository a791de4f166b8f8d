package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/duckswarm/internal/config"
)

var ErrBlobNotFound = errors.New("routine catalog not found")

// Store holds a single routine catalog object.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// S3Store keeps the catalog as one object in an S3-compatible bucket.
type S3Store struct {
	client      *minio.Client
	bucket      string
	key         string
	contentType string
}

func NewS3Store(cfg *config.BlobConfig) (*S3Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("routines_blob is not configured")
	}

	bucket, key := strings.TrimSpace(cfg.Bucket), strings.Trim(strings.TrimSpace(cfg.Key), "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("routines_blob needs both bucket and key")
	}

	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	creds, err := staticCredentials(cfg.AccessKeyFile, cfg.SecretKeyFile)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("routines_blob client: %w", err)
	}

	store := &S3Store{client: client, bucket: bucket, key: key, contentType: "application/yaml"}
	if path.Ext(key) == ".json" {
		store.contentType = "application/json"
	}
	return store, nil
}

func (s *S3Store) Load(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classify(err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: s.contentType,
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

// Location is the bucket/key pair, for log lines.
func (s *S3Store) Location() string {
	return s.bucket + "/" + s.key
}

func (s *S3Store) classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%s: %w", s.Location(), ErrBlobNotFound)
	}
	return fmt.Errorf("%s: %w", s.Location(), err)
}

// splitEndpoint accepts a bare host[:port] (TLS) or an http(s) URL.
func splitEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("routines_blob endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("routines_blob endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false, fmt.Errorf("routines_blob endpoint %q is not an http(s) host", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

func staticCredentials(accessFile, secretFile string) (*credentials.Credentials, error) {
	var keys [2]string
	for i, source := range []struct{ name, file string }{
		{"access key", accessFile},
		{"secret key", secretFile},
	} {
		file := strings.TrimSpace(source.file)
		if file == "" {
			return nil, fmt.Errorf("routines_blob %s file is not set", source.name)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("routines_blob %s: %w", source.name, err)
		}
		keys[i] = strings.TrimSpace(string(data))
	}
	return credentials.NewStaticV4(keys[0], keys[1], ""), nil
}
