package journal

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "webhook_deliveries"
	retention      = 90 * 24 * time.Hour
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoJournal struct {
	collection *mongo.Collection
}

var _ Journal = (*MongoJournal)(nil)

func NewMongoJournal(db *mongo.Database) *MongoJournal {
	return &MongoJournal{collection: db.Collection(collectionName)}
}

func (j *MongoJournal) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "received_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		},
	}

	if _, err := j.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (j *MongoJournal) Record(ctx context.Context, entry Entry) error {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	if _, err := j.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (j *MongoJournal) Close(ctx context.Context) error {
	return j.collection.Database().Client().Disconnect(ctx)
}
