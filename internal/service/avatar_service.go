package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"webui-accounts/internal/apperror"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// avatarExtensions maps the accepted content types to object-key extensions.
var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// AvatarService stores profile images on S3-compatible storage and returns
// the public URL to persist on the account.
type AvatarService interface {
	Upload(ctx context.Context, userID, contentType string, data []byte) (string, error)
}

type avatarService struct {
	s3Client      *s3.Client
	bucket        string
	publicBaseURL string
	logger        zerolog.Logger
}

// NewAvatarService creates a new AvatarService.
func NewAvatarService(s3Client *s3.Client, bucket, publicBaseURL string, logger zerolog.Logger) AvatarService {
	return &avatarService{
		s3Client:      s3Client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger.With().Str("service", "AvatarService").Logger(),
	}
}

// Upload writes the image under a per-user key, so a re-upload replaces the
// previous avatar instead of accumulating objects.
func (s *avatarService) Upload(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", apperror.ValidationFailed(fmt.Sprintf("unsupported avatar content type %q", contentType))
	}

	key := fmt.Sprintf("avatars/%s%s", userID, ext)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("key", key).Msg("Failed to upload avatar")
		return "", fmt.Errorf("uploading avatar for user %s: %w", userID, err)
	}

	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key), nil
}
