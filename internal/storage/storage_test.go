package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxychat/internal/config"
	"galaxychat/internal/model"
)

func newService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := New(config.UploadConfig{
		Dir:          dir,
		PublicPath:   "/uploads",
		MaxSizeMB:    1,
		AllowedTypes: []string{"image/png", "image/jpeg", "application/pdf"},
		PDFMaxPages:  10,
	}, config.CloudinaryConfig{})
	require.NoError(t, err)
	return svc, dir
}

func TestValidate(t *testing.T) {
	svc, _ := newService(t)

	assert.NoError(t, svc.Validate("image/png", 10))
	assert.NoError(t, svc.Validate(" IMAGE/PNG ", 10))
	assert.ErrorIs(t, svc.Validate("text/plain", 10), ErrUnsupportedType)
	assert.ErrorIs(t, svc.Validate("image/png", 0), ErrEmptyFile)
	assert.ErrorIs(t, svc.Validate("image/png", 1<<20+1), ErrFileTooLarge)
}

func TestSaveLocalAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, dir := newService(t)

	att, err := svc.Save(ctx, "Cat.PNG", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(att.URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(att.URL, ".png"))
	assert.Equal(t, "Cat.PNG", att.Name)
	assert.EqualValues(t, 9, att.Size)

	_, err = os.Stat(filepath.Join(dir, filepath.Base(att.URL)))
	require.NoError(t, err)

	rc, err := svc.Open(ctx, att.URL)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	url, err := svc.ImageURL(ctx, att)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", url)

	remote, err := svc.ImageURL(ctx, model.Attachment{URL: "https://cdn.example.com/a.png", Type: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", remote)
}

func TestOpenRejectsTraversalAndUnknown(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Open(ctx, "/uploads/../../etc/passwd")
	assert.Error(t, err)
	_, err = svc.Open(ctx, "ftp://example.com/x")
	assert.ErrorIs(t, err, ErrUnknownLocation)
}

func TestOpenRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-remote"))
	}))
	defer srv.Close()

	svc, _ := newService(t)
	rc, err := svc.Open(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "%PDF-remote", string(data))

	_, err = svc.Open(context.Background(), srv.URL+"/missing.pdf")
	assert.Error(t, err)
}

func TestPDFTextRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	att, err := svc.Save(ctx, "doc.pdf", "application/pdf", []byte("not a pdf"))
	require.NoError(t, err)

	_, err = svc.PDFText(ctx, att)
	assert.Error(t, err)
}

func TestPDFPageImagesNeedCloudinary(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.PDFPageImages(context.Background(), model.Attachment{URL: "/uploads/a.pdf"}, 3)
	assert.ErrorIs(t, err, ErrPageImagesUnavailable)
}

func TestCloudinaryURLs(t *testing.T) {
	b := &CloudinaryBackend{cloudName: "demo"}

	id, ok := b.PublicID("https://res.cloudinary.com/demo/image/upload/v1712345678/galaxychat/report.pdf")
	require.True(t, ok)
	assert.Equal(t, "galaxychat/report", id)

	id, ok = b.PublicID("https://res.cloudinary.com/demo/image/upload/sample.jpg")
	require.True(t, ok)
	assert.Equal(t, "sample", id)

	_, ok = b.PublicID("https://res.cloudinary.com/other/image/upload/v1/x.pdf")
	assert.False(t, ok)

	assert.Equal(t,
		"https://res.cloudinary.com/demo/image/upload/pg_2,w_800,q_auto,f_auto/galaxychat/report.jpg",
		b.PageImageURL("galaxychat/report", 2))
}
