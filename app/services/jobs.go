package services

import (
	"context"

	"github.com/shashiranjanraj/filebot/pkg/queue"
)

const (
	BroadcastJobName = "broadcast.deliver"
	MirrorJobName    = "files.mirror"
)

// BroadcastJob delivers one queued broadcast.
type BroadcastJob struct {
	BroadcastID string `json:"broadcast_id"`

	svc *BroadcastService
}

func (BroadcastJob) JobName() string { return BroadcastJobName }

func (j *BroadcastJob) Handle(ctx context.Context) error {
	return j.svc.Run(ctx, j.BroadcastID)
}

// MirrorJob copies an uploaded file onto the storage disk.
type MirrorJob struct {
	FileUniqueID string `json:"file_unique_id"`

	svc *FileService
}

func (MirrorJob) JobName() string { return MirrorJobName }

func (j *MirrorJob) Handle(ctx context.Context) error {
	return j.svc.Mirror(ctx, j.FileUniqueID)
}

// RegisterJobs teaches q how to decode the jobs above.
func RegisterJobs(q *queue.Manager, broadcasts *BroadcastService, files *FileService) {
	q.Register(BroadcastJobName, func() queue.Job { return &BroadcastJob{svc: broadcasts} })
	q.Register(MirrorJobName, func() queue.Job { return &MirrorJob{svc: files} })
}
