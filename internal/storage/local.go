package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type LocalBackend struct {
	dir        string
	publicPath string
}

func NewLocalBackend(dir, publicPath string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	return &LocalBackend{
		dir:        dir,
		publicPath: "/" + strings.Trim(publicPath, "/"),
	}, nil
}

// Save writes data as <unixmillis>_<random><ext> and returns its public URL.
func (b *LocalBackend) Save(name, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = extByType(contentType)
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	filename := fmt.Sprintf("%d_%s%s", time.Now().UnixMilli(), random, ext)

	if err := os.WriteFile(filepath.Join(b.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload failed: %w", err)
	}
	return b.publicPath + "/" + filename, nil
}

// Path maps a public upload URL back to the file on disk.
func (b *LocalBackend) Path(url string) (string, bool) {
	prefix := b.publicPath + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := filepath.Base(strings.TrimPrefix(url, prefix))
	if name == "." || name == "/" || name == ".." {
		return "", false
	}
	return filepath.Join(b.dir, name), true
}

func (b *LocalBackend) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload failed: %w", err)
	}
	return f, nil
}

func extByType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}
