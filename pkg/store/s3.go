package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the slice of the S3 client the store calls. *s3.Client
// satisfies it.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps saves as objects in an S3 bucket under a common key
// prefix. S3 object replacement is atomic, which covers the Store
// contract without temp keys.
//
// Example:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	saves := store.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "saves/")
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store wraps an S3 client. prefix is prepended to every save
// name to form the object key; pass "" to use the bucket root.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(name string) string {
	return s.prefix + name + saveExt
}

// Save uploads data under name, replacing any previous save.
func (s *S3Store) Save(ctx context.Context, name string, data []byte) error {
	if !validName(name) {
		return errBadName
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"save-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	return err
}

// Load downloads the save stored under name.
func (s *S3Store) Load(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, errBadName
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNoSave
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List returns every save under the prefix, sorted by name.
func (s *S3Store) List(ctx context.Context) ([]SaveInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var saves []SaveInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, saveExt) {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, s.prefix), saveExt)
			info := SaveInfo{Name: name}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			saves = append(saves, info)
		}
	}
	sort.Slice(saves, func(i, j int) bool { return saves[i].Name < saves[j].Name })
	return saves, nil
}

// Delete removes the save stored under name. S3 deletes are
// idempotent, so a HeadObject probe decides whether the save existed.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	if !validName(name) {
		return errBadName
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ErrNoSave
		}
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}
