package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/app/repositories"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/response"
	"github.com/shashiranjanraj/filebot/pkg/router"
)

// FileSource resolves and opens stored files.
type FileSource interface {
	Find(ctx context.Context, id string) (*models.File, error)
	Open(ctx context.Context, f *models.File) (io.ReadCloser, int64, error)
}

type FileController struct {
	files FileSource
}

func NewFileController(files FileSource) *FileController {
	return &FileController{files: files}
}

// Download streams the file behind a permanent link.
func (c *FileController) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := router.Param(r, "id")

	f, err := c.files.Find(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		response.NotFound(w)
		return
	}
	if err != nil {
		logger.WithCtx(ctx).Error("files: lookup failed", "id", id, "error", err)
		response.InternalError(w)
		return
	}

	body, size, err := c.files.Open(ctx, f)
	if err != nil {
		logger.WithCtx(ctx).Error("files: open failed", "file_unique_id", f.FileUniqueID, "error", err)
		response.Error(w, http.StatusBadGateway, "File temporarily unavailable")
		return
	}
	defer body.Close()

	h := w.Header()
	h.Set("Content-Type", f.ContentType())
	h.Set("Content-Disposition", attachment(f.FileName))
	if size > 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil && ctx.Err() == nil {
		logger.WithCtx(ctx).Warn("files: stream interrupted", "file_unique_id", f.FileUniqueID, "error", err)
	}
}

func attachment(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	return `attachment; filename="` + name + `"`
}
