package filestore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSConfig holds Aliyun OSS credentials.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// OSS stores objects in an Aliyun OSS bucket with public-read URLs.
type OSS struct {
	bucket   *oss.Bucket
	endpoint string
	name     string
	prefix   string
}

// NewOSS connects to the bucket.
func NewOSS(cfg OSSConfig) (*OSS, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bkt, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}
	return &OSS{
		bucket:   bkt,
		endpoint: cfg.Endpoint,
		name:     cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (o *OSS) Store(ctx context.Context, data []byte, meta Meta) (string, error) {
	key, err := objectKey(meta)
	if err != nil {
		return "", err
	}
	if o.prefix != "" {
		key = o.prefix + "/" + key
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	}
	if err := o.bucket.PutObject(key, bytes.NewReader(data), opts...); err != nil {
		return "", fmt.Errorf("oss put %s: %w", key, err)
	}
	return o.publicURL(key), nil
}

func (o *OSS) publicURL(key string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(o.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", o.name, host, key)
}
