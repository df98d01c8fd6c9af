package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"galaxychat/internal/pkg/logger"
	"galaxychat/internal/storage"
	"galaxychat/internal/transport/http/response"
)

type UploadHandler struct {
	storage *storage.Service
}

func NewUploadHandler(storage *storage.Service) *UploadHandler {
	return &UploadHandler{storage: storage}
}

// Upload accepts a multipart form with a "file" field.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no file provided (form field 'file')")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if err := h.storage.Validate(contentType, file.Size); err != nil {
		h.writeError(c, err)
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.storage.MaxBytes()+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read uploaded file")
		return
	}

	att, err := h.storage.Save(c.Request.Context(), file.Filename, contentType, data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	logger.FromContext(c).WithFields(log.Fields{"file": att.Name, "type": att.Type, "size": att.Size, "url": att.URL}).Info("file uploaded")
	response.OK(c, att)
}

func (h *UploadHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedType, err.Error())
	case errors.Is(err, storage.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, storage.ErrEmptyFile):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to upload file")
	}
}

// PDFProxy re-serves a stored PDF inline so browsers can preview it.
func (h *UploadHandler) PDFProxy(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "pdf url is required")
		return
	}

	rc, err := h.storage.Open(c.Request.Context(), url)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownLocation) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		logger.FromContext(c).WithField("url", url).Warnf("pdf proxy fetch failed: %v", err)
		response.Error(c, http.StatusBadGateway, response.CodeBadGateway, "failed to fetch pdf")
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", "inline")
	c.Header("Cache-Control", "public, max-age=3600")
	c.DataFromReader(http.StatusOK, -1, "application/pdf", rc, nil)
}
