package packets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
)

// S3API is the subset of the S3 client the repository uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Settings locates the bucket and its credentials.
type S3Settings struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewS3Client builds an S3 client for an S3-compatible endpoint.
func NewS3Client(ctx context.Context, s S3Settings) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Repository keeps one object per packet under status/account/localId.
// S3 writes are atomic per object, which gives the per-key write
// serialization the database contract needs.
type S3Repository struct {
	client S3API
	bucket string
}

func NewS3Repository(client S3API, bucket string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket}
}

func objectKey(key packet.DatabaseKey) string {
	return string(key.Status) + "/" + key.UID.AccountID + "/" + key.UID.LocalID
}

func parseObjectKey(name string) (packet.DatabaseKey, bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 {
		return packet.DatabaseKey{}, false
	}
	status, err := packet.ParseStatus(parts[0])
	if err != nil || parts[1] == "" || parts[2] == "" {
		return packet.DatabaseKey{}, false
	}
	return packet.DatabaseKey{Status: status, UID: packet.UniversalID{AccountID: parts[1], LocalID: parts[2]}}, true
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (r *S3Repository) WriteRecord(ctx context.Context, key packet.DatabaseKey, data []byte) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

func (r *S3Repository) ReadRecord(ctx context.Context, key packet.DatabaseKey) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("s3 error: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 error: %w", err)
	}
	return data, nil
}

func (r *S3Repository) HasRecord(ctx context.Context, key packet.DatabaseKey) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 error: %w", err)
	}
	return true, nil
}

func (r *S3Repository) DeleteRecord(ctx context.Context, key packet.DatabaseKey) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

func (r *S3Repository) DeleteAllRecords(ctx context.Context) error {
	return r.VisitAllRecords(ctx, func(key packet.DatabaseKey) error {
		return r.DeleteRecord(ctx, key)
	})
}

func (r *S3Repository) VisitAllRecords(ctx context.Context, fn func(key packet.DatabaseKey) error) error {
	var keys []packet.DatabaseKey
	for _, status := range []packet.Status{packet.StatusDraft, packet.StatusSealed} {
		k, err := r.list(ctx, string(status)+"/")
		if err != nil {
			return err
		}
		keys = append(keys, k...)
	}
	return visit(ctx, keys, fn)
}

func (r *S3Repository) VisitAccountRecords(ctx context.Context, accountID string, fn func(key packet.DatabaseKey) error) error {
	var keys []packet.DatabaseKey
	for _, status := range []packet.Status{packet.StatusDraft, packet.StatusSealed} {
		k, err := r.list(ctx, string(status)+"/"+accountID+"/")
		if err != nil {
			return err
		}
		keys = append(keys, k...)
	}
	return visit(ctx, keys, fn)
}

// list returns the packet keys under prefix in lexical order. Objects that
// do not follow the key layout are ignored.
func (r *S3Repository) list(ctx context.Context, prefix string) ([]packet.DatabaseKey, error) {
	var keys []packet.DatabaseKey
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 error: %w", err)
		}
		for _, obj := range page.Contents {
			if k, ok := parseObjectKey(aws.ToString(obj.Key)); ok {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}
