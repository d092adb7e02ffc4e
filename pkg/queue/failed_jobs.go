package queue

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shashiranjanraj/filebot/pkg/logger"
)

// MongoFailedStore keeps failed jobs in a MongoDB collection.
type MongoFailedStore struct {
	col *mongo.Collection
}

func NewMongoFailedStore(col *mongo.Collection) *MongoFailedStore {
	return &MongoFailedStore{col: col}
}

func (s *MongoFailedStore) SaveFailed(ctx context.Context, job FailedJob) error {
	if _, err := s.col.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("queue: save failed job %s: %w", job.Type, err)
	}
	return nil
}

// persistFailed always records the job in memory and, when a store is
// configured, in the store as well. The worker context may already be
// cancelled here, so the write gets its own deadline.
func (m *Manager) persistFailed(job FailedJob) {
	m.mu.Lock()
	m.failed = append(m.failed, job)
	m.mu.Unlock()

	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveFailed(ctx, job); err != nil {
		logger.Error("queue: persist failed job", "type", job.Type, "error", err)
	}
}
