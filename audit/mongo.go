package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dselans/beampatch/patcherr"
)

// MongoSink records events as documents in a MongoDB collection.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects to uri and targets database.collection for writes.
func NewMongoSink(uri, database, collection string) (*MongoSink, *patcherr.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "connecting to audit mongo")
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "pinging audit mongo")
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

type mongoEvent struct {
	Filename  string    `bson:"filename"`
	Succeeded bool      `bson:"succeeded"`
	Message   string    `bson:"message"`
	AppliedAt time.Time `bson:"applied_at"`
}

func (s *MongoSink) Record(e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.collection.InsertOne(ctx, mongoEvent{
		Filename:  e.Filename,
		Succeeded: e.Succeeded,
		Message:   e.Message,
		AppliedAt: e.AppliedAt,
	})
	return err
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
