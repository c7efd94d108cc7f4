// Package storage persists avatar images in S3-compatible object storage
// (MinIO in development).
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/tinytulsi/mart-backend/internal/config"
)

// Image store errors
var (
	ErrInvalidImage = errors.New("invalid or unsupported image payload")
	ErrImageTooBig  = errors.New("image payload exceeds the size limit")
)

// ImageStore is the capability the core needs from an image backend
type ImageStore interface {
	// UploadAvatar stores a decoded image and returns its object key and public URL
	UploadAvatar(ctx context.Context, data []byte, contentType string) (key, url string, err error)
	// Delete removes a stored object; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
}

// allowed avatar content types, sniffed from the payload prefix
var imageMagic = map[string]string{
	"\x89PNG\r\n\x1a\n": "image/png",
	"\xff\xd8\xff":      "image/jpeg",
	"RIFF":              "image/webp",
}

// DecodeAvatarPayload validates a base64 data-URL avatar payload and returns
// the raw bytes with their sniffed content type. Fails closed on anything it
// does not recognize.
func DecodeAvatarPayload(payload string, maxBytes int64) ([]byte, string, error) {
	// data:image/png;base64,....
	const marker = ";base64,"
	idx := strings.Index(payload, marker)
	if !strings.HasPrefix(payload, "data:image/") || idx < 0 {
		return nil, "", ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(payload[idx+len(marker):])
	if err != nil {
		return nil, "", ErrInvalidImage
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrImageTooBig
	}

	for magic, contentType := range imageMagic {
		if bytes.HasPrefix(data, []byte(magic)) {
			return data, contentType, nil
		}
	}
	return nil, "", ErrInvalidImage
}

// S3ImageStore implements ImageStore on an S3-compatible bucket
type S3ImageStore struct {
	client *s3.Client
	bucket string
	// baseURL prefixes object keys to form public URLs
	baseURL string
}

// NewS3ImageStore creates the store from storage configuration
func NewS3ImageStore(cfg config.StorageConfig) *S3ImageStore {
	var endpointURL string
	if strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://") {
		endpointURL = cfg.Endpoint
	} else {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // MinIO needs path-style addressing
	})

	return &S3ImageStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: fmt.Sprintf("%s/%s", endpointURL, cfg.Bucket),
	}
}

// UploadAvatar stores the image under a fresh key in the avatars prefix
func (s *S3ImageStore) UploadAvatar(ctx context.Context, data []byte, contentType string) (string, string, error) {
	ext := "bin"
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	key := fmt.Sprintf("avatars/%d-%s.%s", time.Now().UTC().Unix(), uuid.New().String(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload avatar: %w", err)
	}

	return key, fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

// Delete removes a stored object
func (s *S3ImageStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
