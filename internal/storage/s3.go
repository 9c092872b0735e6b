package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pennyledger/receipt-pipeline/internal/secrets"
)

// Secret names for the primary blob store
const (
	AWSAccessKeySecret = "AWS_ACCESS_KEY_ID"
	AWSSecretKeySecret = "AWS_SECRET_ACCESS_KEY"
)

// BlobSigner produces short-lived read URLs for objects in the primary
// blob store.
type BlobSigner interface {
	SignGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// AwsS3 implements BlobSigner with S3 presigned GET requests.
type AwsS3 struct {
	presigner *s3.PresignClient
}

// NewAwsS3 creates an S3 signer. Credentials come from the secret store
// when present, otherwise from the default AWS provider chain.
func NewAwsS3(ctx context.Context, store secrets.Store, region string) (*AwsS3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	accessKey, accessErr := store.Get(AWSAccessKeySecret)
	secretKey, secretErr := store.Get(AWSSecretKeySecret)
	switch {
	case accessErr == nil && secretErr == nil:
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	case errors.Is(accessErr, secrets.ErrNotFound) && errors.Is(secretErr, secrets.ErrNotFound):
		// default chain: instance profile, shared config, env
	default:
		return nil, fmt.Errorf("partial aws credentials: %w", errors.Join(accessErr, secretErr))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &AwsS3{
		presigner: s3.NewPresignClient(s3.NewFromConfig(cfg)),
	}, nil
}

// SignGetURL returns a presigned GET URL for the object
func (a *AwsS3) SignGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presigning s3 object %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
