// Package services holds the bot's behaviour: update handling, file
// delivery, broadcasts and statistics. Persistence and Telegram access
// are injected so the services can be tested without either.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/pkg/queue"
)

var (
	// ErrForbidden is returned when a non-admin attempts an admin action.
	ErrForbidden = errors.New("services: forbidden")

	// ErrNotSubscribed is returned when the subscription gate rejects a user.
	ErrNotSubscribed = errors.New("services: not subscribed")

	// ErrEmptyBroadcast is returned for a broadcast without text.
	ErrEmptyBroadcast = errors.New("services: broadcast text is empty")
)

// UserStore is implemented by repositories.UserRepository.
type UserStore interface {
	Upsert(ctx context.Context, u models.User) (bool, error)
	MarkBlocked(ctx context.Context, userID int64) error
	Count(ctx context.Context) (int64, error)
	CountBlocked(ctx context.Context) (int64, error)
	EachActive(ctx context.Context, fn func(userID int64) error) error
}

// FileStore is implemented by repositories.FileRepository.
type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	Find(ctx context.Context, id string) (*models.File, error)
	IncrementDownloads(ctx context.Context, uniqueID string) error
	SetMirrorPath(ctx context.Context, uniqueID, path string) error
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, page, limit int) ([]models.File, int64, error)
}

// BroadcastStore is implemented by repositories.BroadcastRepository.
type BroadcastStore interface {
	Create(ctx context.Context, b *models.Broadcast) error
	Find(ctx context.Context, id string) (*models.Broadcast, error)
	// MarkRunning moves a queued broadcast to running and reports
	// whether this call made the transition.
	MarkRunning(ctx context.Context, id string, at time.Time) (bool, error)
	Finish(ctx context.Context, id string, state models.BroadcastState, res models.BroadcastResult, errMsg string, at time.Time) error
}

// Dispatcher is implemented by *queue.Manager.
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.Job) error
}

// Admins is the set of Telegram user ids allowed to upload and broadcast.
type Admins map[int64]struct{}

func NewAdmins(ids []int64) Admins {
	a := make(Admins, len(ids))
	for _, id := range ids {
		a[id] = struct{}{}
	}
	return a
}

func (a Admins) Contains(id int64) bool {
	_, ok := a[id]
	return ok
}

// Authorize returns ErrForbidden unless id is an admin.
func (a Admins) Authorize(id int64) error {
	if !a.Contains(id) {
		return fmt.Errorf("%w: user %d is not an admin", ErrForbidden, id)
	}
	return nil
}
