package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"galaxychat/internal/config"
)

var versionSegment = regexp.MustCompile(`^v\d+$`)

type CloudinaryBackend struct {
	cld       *cloudinary.Cloudinary
	cloudName string
	folder    string
}

func NewCloudinaryBackend(cfg config.CloudinaryConfig) (*CloudinaryBackend, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary failed: %w", err)
	}
	folder := cfg.Folder
	if folder == "" {
		folder = "galaxychat"
	}
	return &CloudinaryBackend{cld: cld, cloudName: cfg.CloudName, folder: folder}, nil
}

func (b *CloudinaryBackend) Save(ctx context.Context, name string, data []byte) (string, error) {
	resp, err := b.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:       b.folder,
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if resp.Error.Message != "" {
		return "", errors.New("cloudinary upload failed: " + resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload of %s returned no url", name)
	}
	return resp.SecureURL, nil
}

// PublicID extracts the asset id from a delivery URL of this cloud.
func (b *CloudinaryBackend) PublicID(url string) (string, bool) {
	prefix := "https://res.cloudinary.com/" + b.cloudName + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(url, prefix)
	_, after, ok := strings.Cut(rest, "/upload/")
	if !ok || after == "" {
		return "", false
	}
	segments := strings.Split(after, "/")
	if len(segments) > 1 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}
	id := strings.Join(segments, "/")
	id = strings.TrimSuffix(id, path.Ext(id))
	return id, id != ""
}

func (b *CloudinaryBackend) PageImageURL(publicID string, page int) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/pg_%d,w_800,q_auto,f_auto/%s.jpg", b.cloudName, page, publicID)
}
