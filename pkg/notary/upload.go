package notary

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// DefaultUploadRegion is where the notary service's upload bucket lives.
const DefaultUploadRegion = "us-west-2"

// Uploader transfers a submission's file to its upload target.
type Uploader interface {
	Upload(ctx context.Context, target UploadTarget, path string) error
}

// S3Uploader uploads with the temporary credentials in the target.
type S3Uploader struct {
	Region string
}

func (u S3Uploader) Upload(ctx context.Context, target UploadTarget, path string) error {
	region := u.Region
	if region == "" {
		region = DefaultUploadRegion
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
		Credentials: credentials.NewStaticCredentials(
			target.AccessKeyID,
			target.SecretAccessKey,
			target.SessionToken,
		),
	})
	if err != nil {
		return fmt.Errorf("create S3 session: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, err = s3manager.NewUploader(sess).UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(target.Bucket),
		Key:    aws.String(target.Object),
		Body:   f,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("upload to s3://%s/%s: %w", target.Bucket, target.Object, err)
	}
	return nil
}
