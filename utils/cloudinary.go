package utils

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	models "github.com/phillip/volunteer-listings-go/models"
)

// ImageStore uploads listing images and removes replaced ones.
type ImageStore interface {
	Upload(ctx context.Context, fileHeader *multipart.FileHeader) (models.Image, error)
	Destroy(ctx context.Context, img models.Image) error
}

type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %v", err)
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

// Upload stores the file in the configured folder. The returned filename is
// the Cloudinary public ID.
func (c *Cloudinary) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (models.Image, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return models.Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return models.Image{}, fmt.Errorf("upload error: %v", err)
	}
	if resp.Error.Message != "" {
		return models.Image{}, fmt.Errorf("upload error: %s", resp.Error.Message)
	}
	return models.Image{Filename: resp.PublicID, URL: resp.SecureURL}, nil
}

// Destroy deletes the asset, deriving the public ID from the URL when the
// filename is missing.
func (c *Cloudinary) Destroy(ctx context.Context, img models.Image) error {
	publicID := img.Filename
	if publicID == "" {
		id, err := extractPublicID(img.URL)
		if err != nil {
			return fmt.Errorf("could not extract public ID: %v", err)
		}
		publicID = id
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	return nil
}

// extractPublicID turns
// https://res.cloudinary.com/demo/image/upload/v1234567890/listings/abc123.jpg
// into listings/abc123.
func extractPublicID(imageURL string) (string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	idx := -1
	for i, p := range parts {
		if p == "upload" {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(parts)-1 {
		return "", fmt.Errorf("invalid cloudinary URL format")
	}

	rest := parts[idx+1:]
	if len(rest) > 1 && strings.HasPrefix(rest[0], "v") && isDigits(rest[0][1:]) {
		rest = rest[1:]
	}
	joined := path.Join(rest...)
	return strings.TrimSuffix(joined, path.Ext(joined)), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
