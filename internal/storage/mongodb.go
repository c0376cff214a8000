package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

const defaultMongoDatabase = "activity_ingestion"

// MongoDBStorage implements Storage interface using a MongoDB collection
type MongoDBStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoStatusDocument struct {
	ID                     string `bson:"_id"`
	models.IngestionStatus `bson:",inline"`
}

// NewMongoDBStorage connects to MONGODB_URI. The database comes from the
// URI path, the collection from the configured table name.
func NewMongoDBStorage(ctx context.Context, cfg config.StorageConfig) (*MongoDBStorage, error) {
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("mongodb storage requires a connection URI")
	}

	cs, err := connstring.ParseAndValidate(cfg.MongoDBURI)
	if err != nil {
		return nil, fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	database := cs.Database
	if database == "" {
		database = defaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDBStorage{
		client:     client,
		collection: client.Database(database).Collection(cfg.TableName),
	}, nil
}

// UpdateIngestionStatus upserts the ledger document
func (m *MongoDBStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	doc := mongoStatusDocument{ID: statusKey, IngestionStatus: status}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": statusKey}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store ingestion status: %w", err)
	}
	return nil
}

// GetIngestionStatus retrieves the current ingestion status
func (m *MongoDBStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	var doc mongoStatusDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": statusKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return neverRun(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return &doc.IngestionStatus, nil
}

// Close disconnects the client
func (m *MongoDBStorage) Close() error {
	return m.client.Disconnect(context.Background())
}
