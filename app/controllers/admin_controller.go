package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/app/repositories"
	"github.com/shashiranjanraj/filebot/pkg/bind"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/middleware"
	"github.com/shashiranjanraj/filebot/pkg/resource"
	"github.com/shashiranjanraj/filebot/pkg/response"
	"github.com/shashiranjanraj/filebot/pkg/router"
)

const (
	maxPageSize = 100
	// maxPage keeps (page-1)*limit far from integer overflow.
	maxPage = 1_000_000
)

type StatsReader interface {
	Stats(ctx context.Context) (models.Stats, error)
}

type FileLister interface {
	List(ctx context.Context, page, limit int) ([]models.File, int64, error)
	Link(f *models.File) string
}

type Broadcaster interface {
	Create(ctx context.Context, adminID int64, text string) (*models.Broadcast, error)
	Get(ctx context.Context, id string) (*models.Broadcast, error)
}

// AdminController serves the token protected /api routes.
type AdminController struct {
	stats      StatsReader
	files      FileLister
	broadcasts Broadcaster
}

func NewAdminController(stats StatsReader, files FileLister, broadcasts Broadcaster) *AdminController {
	return &AdminController{stats: stats, files: files, broadcasts: broadcasts}
}

func (c *AdminController) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := c.stats.Stats(r.Context())
	if err != nil {
		logger.WithCtx(r.Context()).Error("admin: stats", "error", err)
		response.InternalError(w)
		return
	}
	response.Success(w, st)
}

// Files lists uploads newest first.
func (c *AdminController) Files(w http.ResponseWriter, r *http.Request) {
	page := bind.QueryInt(r, "page", 1, maxPage)
	limit := bind.QueryInt(r, "limit", 20, maxPageSize)

	items, total, err := c.files.List(r.Context(), page, limit)
	if err != nil {
		logger.WithCtx(r.Context()).Error("admin: list files", "error", err)
		response.InternalError(w)
		return
	}
	response.Paginated(w, resource.Many(items, c.fileResource), response.Pagination{Page: page, Limit: limit, Total: total})
}

func (c *AdminController) fileResource(f models.File) resource.Map {
	return resource.Map{
		"file_unique_id": f.FileUniqueID,
		"file_id":        f.FileID,
		"file_name":      f.FileName,
		"mime_type":      f.ContentType(),
		"file_size":      f.FileSize,
		"uploaded_by":    f.UploadedBy,
		"downloads":      f.Downloads,
		"mirrored":       f.MirrorPath != "",
		"created_at":     f.CreatedAt,
		"link":           c.files.Link(&f),
	}
}

// Telegram rejects text messages longer than 4096 characters.
type broadcastRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

// Broadcast queues a message to every user.
func (c *AdminController) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	errs, err := bind.JSON(w, r, &req)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs != nil {
		response.ValidationError(w, errs)
		return
	}

	adminID, _ := middleware.AdminIDFromCtx(r.Context())
	b, err := c.broadcasts.Create(r.Context(), adminID, req.Text)
	if err != nil {
		logger.WithCtx(r.Context()).Error("admin: create broadcast", "error", err)
		response.InternalError(w)
		return
	}
	response.Accepted(w, b)
}

func (c *AdminController) ShowBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := c.broadcasts.Get(r.Context(), router.Param(r, "id"))
	if errors.Is(err, repositories.ErrNotFound) {
		response.NotFound(w)
		return
	}
	if err != nil {
		logger.WithCtx(r.Context()).Error("admin: get broadcast", "error", err)
		response.InternalError(w)
		return
	}
	response.Success(w, b)
}
