package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"rental-backend/internal/config"
	"rental-backend/internal/timeutil"
)

const putTimeout = 5 * time.Second

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes one JSON object per message to an S3 compatible bucket
// (AWS, R2, MinIO).
type S3Archive struct {
	client objectPutter
	bucket string
}

func NewS3Archive(ctx context.Context, cfg *config.Config) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Archive.Region),
	}
	if cfg.Archive.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure S3 client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Archive.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Archive.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archive{client: client, bucket: cfg.Archive.Bucket}, nil
}

func (a *S3Archive) Store(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode gateway message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey(msg)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive gateway message: %w", err)
	}
	return nil
}

// objectKey is gateway/yyyy/mm/dd/kind-<txn>-<uuid>.json in ICT.
func objectKey(msg Message) string {
	at := timeutil.ToICT(msg.ReceivedAt)
	txn := msg.TransactionID
	if txn == "" {
		txn = "unknown"
	}
	name := fmt.Sprintf("%s-%s-%s.json", msg.Kind, txn, uuid.NewString())
	return path.Join(msg.Gateway, at.Format("2006/01/02"), name)
}
