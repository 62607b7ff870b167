// Package cloudinary adapts the Cloudinary SDK to the upload pipeline's
// blob store port.
package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"

	"github.com/Y04ash/Projexx/internal/upload"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service implements the upload.BlobStore interface using Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Store sends the file to Cloudinary and returns the stable blob reference.
// A response missing the public id or URLs is reported as an error, never
// as a completed upload.
func (s *Service) Store(ctx context.Context, name string, reader io.Reader) (upload.Blob, error) {
	folder := strings.Trim(s.folder, "/")
	publicID := buildPublicID(name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return upload.Blob{}, fmt.Errorf("failed to upload asset: %w", err)
	}

	if result.PublicID == "" || result.SecureURL == "" {
		return upload.Blob{}, fmt.Errorf("cloudinary returned incomplete result for %s", name)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("file uploaded to cloudinary")

	return upload.Blob{
		ID:        result.PublicID,
		URL:       result.URL,
		SecureURL: result.SecureURL,
		Format:    result.Format,
		SizeBytes: int64(result.Bytes),
	}, nil
}

// Delete removes a stored blob. Used by the submission soft-delete cascade.
func (s *Service) Delete(ctx context.Context, blobID string) error {
	if blobID == "" {
		return fmt.Errorf("blob id must not be empty")
	}

	_, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: blobID})
	if err != nil {
		return fmt.Errorf("failed to destroy asset %s: %w", blobID, err)
	}

	s.logger.Info().Str("public_id", blobID).Msg("file removed from cloudinary")
	return nil
}

func buildPublicID(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}

	return fmt.Sprintf("%s-%d", base, time.Now().Unix())
}
