package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
)

type BucketClient interface {
	WriteReport(ctx context.Context, host, sessionID string, results []*model.Result) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3BucketClient struct {
	client putObjectAPI
	cfg    *config.S3Config
}

func NewS3BucketClient(cfg *config.Config) (*S3BucketClient, error) {
	slog.Info("connecting to s3...")

	c, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to s3: %w", err)
	}

	return &S3BucketClient{
		client: c,
		cfg:    cfg.S3Settings,
	}, nil
}

// WriteReport stores the results of a crawl session as JSON lines and returns the object key.
func (bc *S3BucketClient) WriteReport(ctx context.Context, host, sessionID string,
	results []*model.Result) (string, error) {
	s3Key := fmt.Sprintf("%s/%s/%s/%s", bc.cfg.KeyPrefix, host, sessionID, "report.jsonl")

	var body bytes.Buffer
	enc := jsoniter.NewEncoder(&body)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("marshal result %s: %w", r.URL, err)
		}
	}

	_, err := bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.BucketName,
		Key:         &s3Key,
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: strPtr("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("put report: %w", err)
	}
	slog.Debug("report saved to s3.", slog.String("key", s3Key), slog.Int("results", len(results)))

	return s3Key, nil
}

func connect(cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsCfg.LoadDefaultConfig(context.Background(), awsCfg.WithRegion(cfg.S3Settings.Region))
	if err != nil {
		slog.Error("failed to load s3 config.", slog.String("err", err.Error()))
		return nil, err
	}

	if cfg.Env == "local" {
		s3Config.BaseEndpoint = &cfg.S3Settings.AwsBaseEndpoint // for LocalStack
		s3Config.Credentials = crd.NewStaticCredentialsProvider("test", "test", "")
		// LocalStack does not support `virtual host addressing style` that uses s3 by default.
		slog.Warn("test configuration for S3")
		return s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		}), nil
	}

	return s3.NewFromConfig(s3Config), nil
}

func strPtr(s string) *string {
	return &s
}
