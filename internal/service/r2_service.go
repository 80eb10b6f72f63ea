package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/sheetflow/configs"
)

// ObjectUploader stores a media object under key.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, file []byte, contentType string) error
}

// R2Service uploads media to a Cloudflare R2 bucket over the S3 API.
type R2Service struct {
	config cfg.Config

	once    sync.Once
	client  *s3.Client
	initErr error
}

func NewR2Service(c cfg.Config) *R2Service {
	return &R2Service{config: c}
}

func (r *R2Service) r2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			slog.Info(err.Error())
			r.initErr = err
			return
		}
		r.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
		})
	})
	return r.client, r.initErr
}

func (r *R2Service) Upload(ctx context.Context, key string, file []byte, contentType string) error {
	if r.config.R2.BucketName == "" {
		return fmt.Errorf("R2 bucket is not configured")
	}
	client, err := r.r2Client(ctx)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
