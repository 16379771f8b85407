package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
)

const locationScheme = "s3://"

// Config holds object storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
	CreateBucket    bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		CreateBucket:    env.GetEnvBool("S3_CREATE_BUCKET", env.IsDev()),
	}

	if config.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required")
	}
	if config.AccessKeyID == "" || config.SecretAccessKey == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required")
	}
	return config, nil
}

// Location renders the stable location string of an object in this bucket.
func (c *Config) Location(objectKey string) string {
	return locationScheme + c.BucketName + "/" + objectKey
}

// ParseLocation splits "s3://bucket/key" into its parts.
func ParseLocation(location string) (bucket, objectKey string, err error) {
	rest, ok := strings.CutPrefix(location, locationScheme)
	if !ok {
		return "", "", fmt.Errorf("location %q is not an s3 location", location)
	}
	bucket, objectKey, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || objectKey == "" {
		return "", "", fmt.Errorf("location %q has no bucket or key", location)
	}
	return bucket, objectKey, nil
}
