// Package storage keeps uploaded images and PDFs, on Cloudinary when it is
// configured and on local disk otherwise, and resolves them again for prompt
// building.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"galaxychat/internal/config"
	"galaxychat/internal/model"
	"galaxychat/internal/pkg/pdfextract"
)

var (
	ErrEmptyFile             = errors.New("file is empty")
	ErrUnsupportedType       = errors.New("unsupported file type")
	ErrFileTooLarge          = errors.New("file too large")
	ErrUnknownLocation       = errors.New("attachment location is not readable")
	ErrPageImagesUnavailable = errors.New("pdf page images unavailable")
)

const maxPDFTextChars = 20000

type Service struct {
	cfg        config.UploadConfig
	local      *LocalBackend
	remote     *CloudinaryBackend
	httpClient *http.Client
}

func New(upload config.UploadConfig, cld config.CloudinaryConfig) (*Service, error) {
	local, err := NewLocalBackend(upload.Dir, upload.PublicPath)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:        upload,
		local:      local,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if cld.Configured() {
		remote, err := NewCloudinaryBackend(cld)
		if err != nil {
			log.Warnf("cloudinary disabled, using local uploads: %v", err)
		} else {
			s.remote = remote
		}
	}
	return s, nil
}

// Backend names where new uploads go.
func (s *Service) Backend() string {
	if s.remote != nil {
		return "cloudinary"
	}
	return "local"
}

func (s *Service) MaxBytes() int64 {
	return int64(s.cfg.MaxSizeMB) << 20
}

// Validate checks declared type and size before the body is read.
func (s *Service) Validate(contentType string, size int64) error {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !slices.Contains(s.cfg.AllowedTypes, contentType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > s.MaxBytes() {
		return fmt.Errorf("%w: max %dMB", ErrFileTooLarge, s.cfg.MaxSizeMB)
	}
	return nil
}

// Save stores data and returns the attachment describing it. Cloudinary
// failures fall back to local disk.
func (s *Service) Save(ctx context.Context, name, contentType string, data []byte) (model.Attachment, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if err := s.Validate(contentType, int64(len(data))); err != nil {
		return model.Attachment{}, err
	}

	att := model.Attachment{Name: name, Type: contentType, Size: int64(len(data))}
	if s.remote != nil {
		url, err := s.remote.Save(ctx, name, data)
		if err == nil {
			att.URL = url
			return att, nil
		}
		log.WithField("file", name).Warnf("cloudinary upload failed, storing locally: %v", err)
	}

	url, err := s.local.Save(name, contentType, data)
	if err != nil {
		return model.Attachment{}, err
	}
	att.URL = url
	return att, nil
}

// Open reads a local upload or fetches a remote URL.
func (s *Service) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if path, ok := s.local.Path(url); ok {
		f, err := s.local.Open(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request failed: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch attachment status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Service) readAll(ctx context.Context, url string) ([]byte, error) {
	rc, err := s.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.MaxBytes()+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment failed: %w", err)
	}
	if int64(len(data)) > s.MaxBytes() {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// ImageURL inlines local uploads as data URLs so providers can see them;
// remote URLs are returned unchanged.
func (s *Service) ImageURL(ctx context.Context, a model.Attachment) (string, error) {
	if _, ok := s.local.Path(a.URL); !ok {
		return a.URL, nil
	}
	data, err := s.readAll(ctx, a.URL)
	if err != nil {
		return "", err
	}
	mimeType := a.Type
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = imageTypeByExt(filepath.Ext(a.URL))
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (s *Service) PDFText(ctx context.Context, a model.Attachment) (string, error) {
	data, err := s.readAll(ctx, a.URL)
	if err != nil {
		return "", err
	}
	return pdfextract.ExtractText(bytes.NewReader(data), maxPDFTextChars)
}

// PDFPageImages returns one rendered image URL per page, up to maxPages. Only
// PDFs stored on Cloudinary can be rendered.
func (s *Service) PDFPageImages(ctx context.Context, a model.Attachment, maxPages int) ([]string, error) {
	if s.remote == nil {
		return nil, ErrPageImagesUnavailable
	}
	publicID, ok := s.remote.PublicID(a.URL)
	if !ok {
		return nil, ErrPageImagesUnavailable
	}
	if maxPages <= 0 {
		maxPages = s.cfg.PDFMaxPages
	}

	pages := maxPages
	if data, err := s.readAll(ctx, a.URL); err == nil {
		if doc, err := pdfextract.Open(data); err == nil {
			pages = min(doc.PageCount(), maxPages)
		}
	}
	if pages <= 0 {
		return nil, ErrPageImagesUnavailable
	}

	out := make([]string, 0, pages)
	for page := 1; page <= pages; page++ {
		out = append(out, s.remote.PageImageURL(publicID, page))
	}
	return out, nil
}

func imageTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
