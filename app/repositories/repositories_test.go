package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/shashiranjanraj/filebot/app/models"
)

func newMock(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestUserUpsertReportsNewUser(t *testing.T) {
	mt := newMock(t)

	mt.Run("created", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "x"}}}},
		))

		seen := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		created, err := NewUserRepository(mt.DB).Upsert(context.Background(), models.User{UserID: 42, FirstName: "Ann", LastSeen: seen})
		require.NoError(mt, err)
		assert.True(mt, created)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		onInsert := evt.Command.Lookup("updates", "0", "u", "$setOnInsert").Document()
		assert.True(mt, seen.Equal(onInsert.Lookup("first_seen").Time()))
		assert.True(mt, seen.Equal(onInsert.Lookup("created_at").Time()))
	})

	mt.Run("existing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		created, err := NewUserRepository(mt.DB).Upsert(context.Background(), models.User{UserID: 42})
		require.NoError(mt, err)
		assert.False(mt, created)
	})
}

func TestUserCount(t *testing.T) {
	mt := newMock(t)

	mt.Run("count", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + UsersCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(7)}}))

		n, err := NewUserRepository(mt.DB).Count(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), n)
	})
}

func TestUserEachActive(t *testing.T) {
	mt := newMock(t)

	mt.Run("streams ids", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + UsersCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "user_id", Value: int64(1)}},
			bson.D{{Key: "user_id", Value: int64(2)}},
		))

		var got []int64
		err := NewUserRepository(mt.DB).EachActive(context.Background(), func(id int64) error {
			got = append(got, id)
			return nil
		})
		require.NoError(mt, err)
		assert.Equal(mt, []int64{1, 2}, got)
	})
}

func TestFileFindFallsBackToFileID(t *testing.T) {
	mt := newMock(t)

	mt.Run("fallback", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + FilesCollection
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "file_id", Value: "BQAC-long"},
				{Key: "file_unique_id", Value: "AgAD"},
				{Key: "file_name", Value: "report.pdf"},
			}),
		)

		f, err := NewFileRepository(mt.DB).Find(context.Background(), "BQAC-long")
		require.NoError(mt, err)
		assert.Equal(mt, "AgAD", f.FileUniqueID)
		assert.Equal(mt, "report.pdf", f.FileName)
	})

	mt.Run("missing", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + FilesCollection
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		_, err := NewFileRepository(mt.DB).Find(context.Background(), "nope")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestFileCreateDuplicate(t *testing.T) {
	mt := newMock(t)

	mt.Run("duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := NewFileRepository(mt.DB).Create(context.Background(), &models.File{FileUniqueID: "AgAD"})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})
}

func TestFileIncrementMissing(t *testing.T) {
	mt := newMock(t)

	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := NewFileRepository(mt.DB).IncrementDownloads(context.Background(), "gone")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestBroadcastFind(t *testing.T) {
	mt := newMock(t)

	mt.Run("found", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + BroadcastsCollection
		created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "b1"},
			{Key: "text", Value: "hello"},
			{Key: "state", Value: "done"},
			{Key: "sent", Value: int64(3)},
			{Key: "created_at", Value: created},
		}))

		b, err := NewBroadcastRepository(mt.DB).Find(context.Background(), "b1")
		require.NoError(mt, err)
		assert.Equal(mt, models.BroadcastDone, b.State)
		assert.Equal(mt, int64(3), b.Sent)
		assert.True(mt, created.Equal(b.CreatedAt))
	})

	mt.Run("missing", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + BroadcastsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := NewBroadcastRepository(mt.DB).Find(context.Background(), "nope")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestBroadcastMarkRunningClaimsQueuedOnly(t *testing.T) {
	mt := newMock(t)

	mt.Run("claimed", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		ok, err := NewBroadcastRepository(mt.DB).MarkRunning(context.Background(), "b1", time.Now())
		require.NoError(mt, err)
		assert.True(mt, ok)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "queued", evt.Command.Lookup("updates", "0", "q", "state").StringValue())
	})

	mt.Run("already running", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		ok, err := NewBroadcastRepository(mt.DB).MarkRunning(context.Background(), "b1", time.Now())
		require.NoError(mt, err)
		assert.False(mt, ok)
	})
}

func TestFileListSkip(t *testing.T) {
	mt := newMock(t)

	mt.Run("large page", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + FilesCollection
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(0)}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		files, _, err := NewFileRepository(mt.DB).List(context.Background(), 1_000_000, 100)
		require.NoError(mt, err)
		assert.Empty(mt, files)

		_ = mt.GetStartedEvent() // count
		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.Equal(mt, int64(99_999_900), find.Command.Lookup("skip").Int64())
	})
}
