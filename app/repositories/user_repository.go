package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
)

// UserRepository handles the users collection.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique user_id index.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "blocked", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("users: ensure indexes: %w", err)
	}
	return nil
}

// Upsert registers or refreshes a user and reports whether it was new.
// A user who talks to the bot again is no longer considered blocked.
func (r *UserRepository) Upsert(ctx context.Context, u models.User) (bool, error) {
	defer metrics.ObserveDBQuery(UsersCollection, "upsert", time.Now())

	now := u.LastSeen
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": u.UserID},
		bson.M{
			"$set": bson.M{
				"username":   u.Username,
				"first_name": u.FirstName,
				"last_seen":  now,
				"blocked":    false,
			},
			"$setOnInsert": bson.M{"first_seen": now, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("users: upsert %d: %w", u.UserID, err)
	}
	return res.UpsertedCount == 1, nil
}

// MarkBlocked flags a user who blocked the bot so broadcasts skip them.
func (r *UserRepository) MarkBlocked(ctx context.Context, userID int64) error {
	defer metrics.ObserveDBQuery(UsersCollection, "mark_blocked", time.Now())

	_, err := r.col.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": bson.M{"blocked": true}})
	if err != nil {
		return fmt.Errorf("users: mark blocked %d: %w", userID, err)
	}
	return nil
}

// Count returns the number of registered users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	defer metrics.ObserveDBQuery(UsersCollection, "count", time.Now())

	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return n, nil
}

// CountBlocked returns the number of users who blocked the bot.
func (r *UserRepository) CountBlocked(ctx context.Context) (int64, error) {
	defer metrics.ObserveDBQuery(UsersCollection, "count", time.Now())

	n, err := r.col.CountDocuments(ctx, bson.M{"blocked": true})
	if err != nil {
		return 0, fmt.Errorf("users: count blocked: %w", err)
	}
	return n, nil
}

// EachActive streams the ids of users who have not blocked the bot.
// Iteration stops at the first error returned by fn.
func (r *UserRepository) EachActive(ctx context.Context, fn func(userID int64) error) error {
	defer metrics.ObserveDBQuery(UsersCollection, "scan", time.Now())

	cur, err := r.col.Find(ctx,
		bson.M{"blocked": bson.M{"$ne": true}},
		options.Find().SetProjection(bson.M{"user_id": 1, "_id": 0}).SetBatchSize(500),
	)
	if err != nil {
		return fmt.Errorf("users: scan: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return fmt.Errorf("users: decode: %w", err)
		}
		if err := fn(row.UserID); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("users: cursor: %w", err)
	}
	return nil
}
