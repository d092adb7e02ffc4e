package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
)

// FileRepository handles the files collection.
type FileRepository struct {
	col *mongo.Collection
}

func NewFileRepository(db *mongo.Database) *FileRepository {
	return &FileRepository{col: db.Collection(FilesCollection)}
}

func (r *FileRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_unique_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "file_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("files: ensure indexes: %w", err)
	}
	return nil
}

// Create stores a new file. ErrDuplicate is returned when the same
// document was uploaded before.
func (r *FileRepository) Create(ctx context.Context, f *models.File) error {
	defer metrics.ObserveDBQuery(FilesCollection, "insert", time.Now())

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, f); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("files: insert %s: %w", f.FileUniqueID, err)
	}
	return nil
}

// Find resolves id as a file_unique_id first and a file_id second.
func (r *FileRepository) Find(ctx context.Context, id string) (*models.File, error) {
	defer metrics.ObserveDBQuery(FilesCollection, "find", time.Now())

	for _, field := range []string{"file_unique_id", "file_id"} {
		var f models.File
		err := r.col.FindOne(ctx, bson.M{field: id}).Decode(&f)
		if err == nil {
			return &f, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("files: find %s: %w", id, err)
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) IncrementDownloads(ctx context.Context, uniqueID string) error {
	defer metrics.ObserveDBQuery(FilesCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx, bson.M{"file_unique_id": uniqueID}, bson.M{"$inc": bson.M{"downloads": 1}})
	if err != nil {
		return fmt.Errorf("files: increment %s: %w", uniqueID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FileRepository) SetMirrorPath(ctx context.Context, uniqueID, path string) error {
	defer metrics.ObserveDBQuery(FilesCollection, "update", time.Now())

	res, err := r.col.UpdateOne(ctx, bson.M{"file_unique_id": uniqueID}, bson.M{"$set": bson.M{"mirror_path": path}})
	if err != nil {
		return fmt.Errorf("files: set mirror %s: %w", uniqueID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FileRepository) Count(ctx context.Context) (int64, error) {
	defer metrics.ObserveDBQuery(FilesCollection, "count", time.Now())

	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("files: count: %w", err)
	}
	return n, nil
}

// List returns one page of files, newest first, and the total count.
func (r *FileRepository) List(ctx context.Context, page, limit int) ([]models.File, int64, error) {
	defer metrics.ObserveDBQuery(FilesCollection, "list", time.Now())

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("files: count: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page-1) * int64(limit)).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("files: list: %w", err)
	}
	files := []models.File{}
	if err := cur.All(ctx, &files); err != nil {
		return nil, 0, fmt.Errorf("files: decode: %w", err)
	}
	return files, total, nil
}
