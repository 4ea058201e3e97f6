package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bowerhall/chatbridge/internal/logger"
	"github.com/bowerhall/chatbridge/internal/transcript"
)

const DefaultBucket = "chatbridge-transcripts"

// Client archives finished conversations to an S3-compatible bucket
type Client struct {
	mc     *minio.Client
	bucket string
}

// Config holds MinIO connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewClient creates a new storage client
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the archive bucket if it doesn't exist
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.bucket, err)
		}
		logger.Info("bucket created", "bucket", c.bucket)
	}

	return nil
}

// ObjectName returns the key a conversation is archived under
func ObjectName(conversationID string, at time.Time) string {
	return path.Join("transcripts", at.UTC().Format("2006/01/02"), conversationID+".json")
}

// ArchiveTranscript uploads a conversation as a JSON document
func (c *Client) ArchiveTranscript(ctx context.Context, conversationID string, lines []transcript.Line) error {
	if len(lines) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript %s: %w", conversationID, err)
	}

	name := ObjectName(conversationID, lines[0].CreatedAt)
	if err := c.upload(ctx, name, data, "application/json"); err != nil {
		return err
	}

	logger.Info("transcript archived", "conversation", conversationID, "lines", len(lines), "object", name)
	return nil
}

// Bucket returns the archive bucket name
func (c *Client) Bucket() string {
	return c.bucket
}

// Healthy checks if MinIO is reachable
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}

func (c *Client) upload(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}

	logger.Debug("file uploaded", "bucket", c.bucket, "name", name, "size", len(data))
	return nil
}
