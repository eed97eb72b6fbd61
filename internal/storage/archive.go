// Package storage uploads compressed snapshots of user logs to an
// S3-compatible bucket.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/akave-ai/logserver/internal/config"
)

// ArchivePrefix is the key prefix under which every archive is stored.
const ArchivePrefix = "archives/"

const (
	contentTypeGzip = "application/gzip"
	snapshotLayout  = "20060102T150405Z"
	metaUser        = "logserver-user"
)

// objectAPI is the subset of *s3.Client the archiver calls.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Archiver writes log snapshots to one bucket.
type Archiver struct {
	client objectAPI
	bucket string
	now    func() time.Time
}

// NewArchiver builds an S3-compatible client for cfg.
// Returns nil if cfg is nil or endpoint/bucket are empty.
func NewArchiver(cfg *config.ArchiveConfig) (*Archiver, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return newArchiver(client, cfg.Bucket), nil
}

func newArchiver(client objectAPI, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: time.Now}
}

// EnsureBucket creates the bucket when it does not exist. Any other
// HeadBucket failure (credentials, endpoint) is returned as is.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	if !isMissingBucket(err) {
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

func isMissingBucket(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

// ArchiveLog gzips r and uploads it as a new snapshot of user's log. It
// returns the object key.
func (a *Archiver) ArchiveLog(ctx context.Context, user string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = user + ".log"
	if _, err := io.Copy(zw, r); err != nil {
		return "", fmt.Errorf("compress %s: %w", user, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress %s: %w", user, err)
	}

	key := KeyForUser(user, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentTypeGzip),
		Metadata:    map[string]string{metaUser: user},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// KeyForUser returns the object key for a snapshot taken at t
// (e.g. archives/alice/2024/02/17/20240217T101500Z.log.gz).
func KeyForUser(user string, t time.Time) string {
	t = t.UTC()
	return path.Join(ArchivePrefix, user, t.Format("2006/01/02"), t.Format(snapshotLayout)+".log.gz")
}

// Archive is one stored snapshot.
type Archive struct {
	Key     string    `json:"key"`
	User    string    `json:"user"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"taken_at"`
}

// parseKey recovers user and snapshot time from a key made by KeyForUser.
func parseKey(key string) (string, time.Time, bool) {
	rest, ok := strings.CutPrefix(key, ArchivePrefix)
	if !ok {
		return "", time.Time{}, false
	}
	user, _, ok := strings.Cut(rest, "/")
	if !ok || user == "" {
		return "", time.Time{}, false
	}
	stamp := strings.TrimSuffix(path.Base(rest), ".log.gz")
	taken, err := time.Parse(snapshotLayout, stamp)
	if err != nil {
		return user, time.Time{}, true
	}
	return user, taken, true
}

// Archives lists the snapshots of user, or of every user when user is
// empty, following continuation tokens across pages. Keys not written by
// ArchiveLog are skipped.
func (a *Archiver) Archives(ctx context.Context, user string) ([]Archive, error) {
	prefix := ArchivePrefix
	if user != "" {
		prefix += user + "/"
	}
	pages := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	var out []Archive
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			owner, taken, ok := parseKey(key)
			if !ok {
				continue
			}
			out = append(out, Archive{Key: key, User: owner, Size: aws.ToInt64(o.Size), TakenAt: taken})
		}
	}
	return out, nil
}
