package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
)

func TestLocationRoundTrip(t *testing.T) {
	cfg := &Config{BucketName: "signatures"}
	loc := cfg.Location("C1/12345678000199/evt/documents.zip")
	assert.Equal(t, "s3://signatures/C1/12345678000199/evt/documents.zip", loc)

	bucket, key, err := ParseLocation(loc)
	require.NoError(t, err)
	assert.Equal(t, "signatures", bucket)
	assert.Equal(t, "C1/12345678000199/evt/documents.zip", key)
}

func TestParseLocationRejectsMalformed(t *testing.T) {
	for _, loc := range []string{"", "gs://b/k", "s3://bucket", "s3:///key"} {
		_, _, err := ParseLocation(loc)
		assert.Error(t, err, loc)
	}
}

func TestLoadConfig(t *testing.T) {
	env.Env = map[string]string{
		"S3_BUCKET_NAME":       "signatures",
		"S3_ACCESS_KEY_ID":     "key",
		"S3_SECRET_ACCESS_KEY": "secret",
		"S3_ENDPOINT_URL":      "http://localhost:9000",
	}
	t.Cleanup(func() { env.Env = nil })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "signatures", cfg.BucketName)
	assert.Equal(t, "http://localhost:9000", cfg.EndpointURL)

	env.Env = map[string]string{"S3_ACCESS_KEY_ID": "key", "S3_SECRET_ACCESS_KEY": "secret"}
	_, err = LoadConfig()
	assert.Error(t, err)
}
