package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/config"
)

func TestBuildObjectKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -2*3600))

	assert.Equal(t, "2024/03/10/abc123.jpg", buildObjectKey(at, "abc123", "jpg"))
	assert.Equal(t, "2024/03/10/abc123", buildObjectKey(at, "abc123", ""))
}

func TestBuildPublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{
			name: "plain endpoint",
			cfg:  config.StorageConfig{Endpoint: "127.0.0.1:9000", Bucket: "images"},
			want: "http://127.0.0.1:9000/images/2024/01/01/a.png",
		},
		{
			name: "tls endpoint",
			cfg:  config.StorageConfig{Endpoint: "s3.example.com", Bucket: "images", UseSSL: true},
			want: "https://s3.example.com/images/2024/01/01/a.png",
		},
		{
			name: "public base wins",
			cfg:  config.StorageConfig{Endpoint: "s3.example.com", Bucket: "images", PublicBase: "https://cdn.example.com/"},
			want: "https://cdn.example.com/2024/01/01/a.png",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildPublicURL(tc.cfg, "2024/01/01/a.png"))
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	host, ssl, err := splitEndpoint("https://s3.example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", host)
	assert.True(t, ssl)

	host, ssl, err = splitEndpoint("minio:9000", false)
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", host)
	assert.False(t, ssl)
}

func TestPublicReadPolicy(t *testing.T) {
	var doc struct {
		Statement []struct {
			Effect   string
			Resource []string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(publicReadPolicy("images")), &doc))
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "Allow", doc.Statement[0].Effect)
	assert.Equal(t, []string{"arn:aws:s3:::images/*"}, doc.Statement[0].Resource)
}
