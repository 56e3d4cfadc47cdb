package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/edulens/core/chat"
)

const chatCollection = "chat_sessions"

type chatRepository struct {
	coll *mongo.Collection
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *mongo.Database) *chatRepository {
	return &chatRepository{coll: db.Collection(chatCollection)}
}

// EnsureIndexes creates the index backing ListSessions.
func (repo *chatRepository) EnsureIndexes(ctx context.Context) error {
	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	return errors.Wrap(err, "creating chat indexes")
}

func (repo *chatRepository) CreateSession(ctx context.Context, s chat.Session) (chat.Session, error) {
	s.ID = uuid.NewString()
	if s.Messages == nil {
		s.Messages = []chat.Message{}
	}
	if _, err := repo.coll.InsertOne(ctx, s); err != nil {
		return chat.Session{}, errors.Wrap(err, "inserting chat session")
	}
	return s, nil
}

func (repo *chatRepository) GetSession(ctx context.Context, id string) (chat.Session, error) {
	var s chat.Session
	if err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.Session{}, chat.ErrNotFound
		}
		return chat.Session{}, errors.Wrap(err, "finding chat session")
	}
	if s.Messages == nil {
		s.Messages = []chat.Message{}
	}
	return s, nil
}

func (repo *chatRepository) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	cur, err := repo.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "finding chat sessions")
	}
	sessions := make([]chat.Session, 0)
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, errors.Wrap(err, "decoding chat sessions")
	}
	return sessions, nil
}

func (repo *chatRepository) AppendMessages(ctx context.Context, id string, updatedAt time.Time, msgs ...chat.Message) error {
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": msgs}},
		"$set":  bson.M{"updated_at": updatedAt},
	}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrap(err, "appending chat messages")
	}
	if res.MatchedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (repo *chatRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting chat session")
	}
	if res.DeletedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}
