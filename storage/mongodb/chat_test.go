package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/trezcool/edulens/core/chat"
)

func TestChatRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	ns := "edulens." + chatCollection

	mt.Run("create session", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		s, err := repo.CreateSession(ctx, chat.Session{UserID: "u1", Title: "Visa", CreatedAt: now, UpdatedAt: now})
		require.NoError(mt, err)
		assert.NotEmpty(mt, s.ID)
		assert.Equal(mt, []chat.Message{}, s.Messages)
	})

	mt.Run("get session", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "s1"},
			{Key: "user_id", Value: "u1"},
			{Key: "title", Value: "Visa"},
			{Key: "messages", Value: bson.A{
				bson.D{{Key: "role", Value: chat.RoleUser}, {Key: "content", Value: "hi"}, {Key: "created_at", Value: now}},
			}},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
		}))

		s, err := repo.GetSession(ctx, "s1")
		require.NoError(mt, err)
		assert.Equal(mt, "u1", s.UserID)
		require.Len(mt, s.Messages, 1)
		assert.Equal(mt, "hi", s.Messages[0].Content)
	})

	mt.Run("get missing session", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetSession(ctx, "missing")
		assert.Equal(mt, chat.ErrNotFound, err)
	})

	mt.Run("list sessions", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "s2"}, {Key: "user_id", Value: "u1"}, {Key: "title", Value: "Loans"}},
			bson.D{{Key: "_id", Value: "s1"}, {Key: "user_id", Value: "u1"}, {Key: "title", Value: "Visa"}},
		))

		sessions, err := repo.ListSessions(ctx, "u1")
		require.NoError(mt, err)
		require.Len(mt, sessions, 2)
		assert.Equal(mt, "s2", sessions[0].ID)
		assert.Nil(mt, sessions[0].Messages)
	})

	mt.Run("append to missing session", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.AppendMessages(ctx, "missing", now, chat.Message{Role: chat.RoleUser, Content: "hi", CreatedAt: now})
		assert.Equal(mt, chat.ErrNotFound, err)
	})

	mt.Run("delete session", func(mt *mtest.T) {
		repo := NewChatRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(mt, repo.DeleteSession(ctx, "s1"))
	})
}
