package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"launcher-core/internal/launcher"
)

// s3API is the subset of the S3 client the vault uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// s3Uploader streams a body to S3, using multipart upload for large blobs.
type s3Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Vault stores blobs as objects named <prefix>/content/<sha256>.
type S3Vault struct {
	client   s3API
	uploader s3Uploader
	bucket   string
	prefix   string
}

// S3Options configures NewS3Vault.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // for S3-compatible stores; empty uses AWS
	PathStyle bool
	AccessKey string // empty falls back to the default credential chain
	SecretKey string
}

// NewS3Vault loads AWS configuration and creates the client and uploader.
func NewS3Vault(ctx context.Context, opts S3Options) (*S3Vault, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newS3Vault(client, manager.NewUploader(client), opts.Bucket, opts.Prefix), nil
}

func newS3Vault(client s3API, uploader s3Uploader, bucket, prefix string) *S3Vault {
	return &S3Vault{client: client, uploader: uploader, bucket: bucket, prefix: prefix}
}

func (v *S3Vault) key(hash string) string {
	return path.Join(v.prefix, "content", hash)
}

// Location returns the object URL.
func (v *S3Vault) Location(hash string) string {
	return "s3://" + v.bucket + "/" + v.key(hash)
}

// Commit uploads the staged file.
func (v *S3Vault) Commit(ctx context.Context, hash string, blob *launcher.StagedBlob) error {
	f, err := blob.Open()
	if err != nil {
		return fmt.Errorf("opening staged blob: %w", err)
	}
	defer f.Close()

	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(v.key(hash)),
		Body:          f,
		ContentLength: aws.Int64(blob.Size),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", hash, err)
	}
	return nil
}

// Open streams the object body.
func (v *S3Vault) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(hash)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("content %s: %w", hash, launcher.ErrNotFound)
		}
		return nil, fmt.Errorf("getting %s: %w", hash, err)
	}
	return out.Body, nil
}

func (v *S3Vault) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(hash)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", hash, err)
}

// Delete removes the object. S3 reports success for missing keys.
func (v *S3Vault) Delete(ctx context.Context, hash string) error {
	_, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(hash)),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", hash, err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// Compile-time check that S3Vault implements launcher.Vault interface
var _ launcher.Vault = (*S3Vault)(nil)
