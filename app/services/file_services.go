package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/app/repositories"
	"github.com/shashiranjanraj/filebot/pkg/event"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/storage"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
)

// FileService stores uploads, hands out permanent links and serves the
// file behind a link.
type FileService struct {
	files     FileStore
	bot       *telegram.Bot
	disk      storage.Disk
	jobs      Dispatcher
	events    *event.Bus
	dump      *telegram.Chat
	publicURL string
	mirror    bool
}

// FileOptions carries the deployment specific settings.
type FileOptions struct {
	DumpChannel string
	PublicURL   string
	Mirror      bool
}

// NewFileService builds the service. disk may be nil when mirroring is off.
func NewFileService(files FileStore, bot *telegram.Bot, disk storage.Disk, jobs Dispatcher, events *event.Bus, opts FileOptions) *FileService {
	s := &FileService{
		files:     files,
		bot:       bot,
		disk:      disk,
		jobs:      jobs,
		events:    events,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		mirror:    opts.Mirror && disk != nil,
	}
	if opts.DumpChannel != "" {
		chat, err := telegram.ParseChat(opts.DumpChannel)
		if err != nil {
			logger.Warn("files: ignoring DUMP_CHANNEL", "error", err)
		} else {
			s.dump = &chat
		}
	}
	return s
}

// Link is the permanent HTTP link of a stored file.
func (s *FileService) Link(f *models.File) string {
	return s.publicURL + "/file/" + f.FileUniqueID
}

// Store copies doc into the dump channel and records it. Uploading the
// same document twice returns the existing record.
func (s *FileService) Store(ctx context.Context, uploader int64, doc *tgbotapi.Document) (*models.File, error) {
	// Re-uploads keep the first record and dump copy.
	existing, err := s.files.Find(ctx, doc.FileUniqueID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	f := &models.File{
		FileID:       doc.FileID,
		FileUniqueID: doc.FileUniqueID,
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		FileSize:     int64(doc.FileSize),
		UploadedBy:   uploader,
		CreatedAt:    time.Now().UTC(),
	}
	if f.FileName == "" {
		f.FileName = f.FileUniqueID
	}

	if s.dump != nil {
		msg, err := s.bot.SendDocument(*s.dump, doc.FileID, "")
		if err != nil {
			return nil, fmt.Errorf("files: copy to dump channel: %w", err)
		}
		f.DumpMessageID = msg.MessageID
		if msg.Chat != nil {
			f.DumpChatID = msg.Chat.ID
		}
	}

	err = s.files.Create(ctx, f)
	if errors.Is(err, repositories.ErrDuplicate) {
		return s.files.Find(ctx, f.FileUniqueID)
	}
	if err != nil {
		return nil, err
	}

	s.events.Fire(event.FileUploaded, f)

	if s.mirror {
		if err := s.jobs.Dispatch(ctx, &MirrorJob{FileUniqueID: f.FileUniqueID}); err != nil {
			logger.WithCtx(ctx).Warn("files: mirror dispatch failed", "file_unique_id", f.FileUniqueID, "error", err)
		}
	}
	return f, nil
}

// Find looks a file up by file_unique_id, falling back to file_id.
func (s *FileService) Find(ctx context.Context, id string) (*models.File, error) {
	return s.files.Find(ctx, id)
}

// Deliver sends the stored document to a user and counts the download.
func (s *FileService) Deliver(ctx context.Context, userID int64, f *models.File) error {
	if _, err := s.bot.SendDocument(telegram.Chat{ID: userID}, f.FileID, f.FileName); err != nil {
		return err
	}
	s.countDownload(ctx, f)
	return nil
}

// Open streams a file for the HTTP download endpoint. The mirrored copy
// wins; otherwise the body comes straight from Telegram and is bound to
// ctx. The caller must close the reader.
func (s *FileService) Open(ctx context.Context, f *models.File) (io.ReadCloser, int64, error) {
	if f.MirrorPath != "" && s.disk != nil {
		rc, err := s.disk.Open(ctx, f.MirrorPath)
		if err == nil {
			s.countDownload(ctx, f)
			return rc, f.FileSize, nil
		}
		logger.WithCtx(ctx).Warn("files: mirror unavailable, falling back to telegram",
			"file_unique_id", f.FileUniqueID, "error", err)
	}

	rc, size, err := s.bot.OpenFile(ctx, f.FileID)
	if err != nil {
		return nil, 0, err
	}
	s.countDownload(ctx, f)
	return rc, size, nil
}

func (s *FileService) countDownload(ctx context.Context, f *models.File) {
	if err := s.files.IncrementDownloads(ctx, f.FileUniqueID); err != nil {
		logger.WithCtx(ctx).Warn("files: count download", "file_unique_id", f.FileUniqueID, "error", err)
	}
	s.events.Fire(event.FileDownloaded, map[string]any{"file_unique_id": f.FileUniqueID})
}

// List pages through stored files, newest first.
func (s *FileService) List(ctx context.Context, page, limit int) ([]models.File, int64, error) {
	return s.files.List(ctx, page, limit)
}

// MirrorPath is where a file's copy lives on the storage disk.
func MirrorPath(f *models.File) string {
	name := path.Base("/" + f.FileName)
	if name == "/" || name == "." {
		name = f.FileUniqueID
	}
	return path.Join("files", f.FileUniqueID, name)
}

// Mirror downloads a file from Telegram into the storage disk.
func (s *FileService) Mirror(ctx context.Context, uniqueID string) error {
	if s.disk == nil {
		return errors.New("files: no storage disk configured")
	}
	f, err := s.files.Find(ctx, uniqueID)
	if err != nil {
		return err
	}
	if f.MirrorPath != "" {
		return nil
	}

	rc, _, err := s.bot.OpenFile(ctx, f.FileID)
	if err != nil {
		return err
	}
	defer rc.Close()

	p := MirrorPath(f)
	if err := s.disk.Put(ctx, p, rc, f.ContentType()); err != nil {
		return err
	}
	if err := s.files.SetMirrorPath(ctx, f.FileUniqueID, p); err != nil {
		return err
	}
	logger.WithCtx(ctx).Info("files: mirrored", "file_unique_id", f.FileUniqueID, "path", p)
	return nil
}
