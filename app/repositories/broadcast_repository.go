package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
)

// BroadcastRepository handles the broadcasts collection.
type BroadcastRepository struct {
	col *mongo.Collection
}

func NewBroadcastRepository(db *mongo.Database) *BroadcastRepository {
	return &BroadcastRepository{col: db.Collection(BroadcastsCollection)}
}

func (r *BroadcastRepository) Create(ctx context.Context, b *models.Broadcast) error {
	defer metrics.ObserveDBQuery(BroadcastsCollection, "insert", time.Now())

	if _, err := r.col.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("broadcasts: insert %s: %w", b.ID, err)
	}
	return nil
}

func (r *BroadcastRepository) Find(ctx context.Context, id string) (*models.Broadcast, error) {
	defer metrics.ObserveDBQuery(BroadcastsCollection, "find", time.Now())

	var b models.Broadcast
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("broadcasts: find %s: %w", id, err)
	}
	return &b, nil
}

// MarkRunning claims a queued broadcast. It reports false when the
// record is missing or no longer queued.
func (r *BroadcastRepository) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	defer metrics.ObserveDBQuery(BroadcastsCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "state": models.BroadcastQueued},
		bson.M{"$set": bson.M{"state": models.BroadcastRunning, "started_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("broadcasts: claim %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

// Finish records the final counters. errMsg is stored only when non-empty.
func (r *BroadcastRepository) Finish(ctx context.Context, id string, state models.BroadcastState, res models.BroadcastResult, errMsg string, at time.Time) error {
	set := bson.M{
		"state":       state,
		"total":       res.Total,
		"sent":        res.Sent,
		"failed":      res.Failed,
		"blocked":     res.Blocked,
		"finished_at": at,
	}
	if errMsg != "" {
		set["error"] = errMsg
	}
	return r.update(ctx, id, set)
}

func (r *BroadcastRepository) update(ctx context.Context, id string, set bson.M) error {
	defer metrics.ObserveDBQuery(BroadcastsCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("broadcasts: update %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
