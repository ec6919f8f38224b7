package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/file-metadata/pkg/filemeta"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection cache entries are stored in
const DefaultCollection = "file_metadata_cache"

// Config options for the MongoDB backend
type Config struct {
	URI        string        // mongodb:// connection URI
	Database   string        // Database name
	Collection string        // Collection name, DefaultCollection when empty
	TTL        time.Duration // Entry lifetime; zero keeps entries until deleted
}

// entry is the stored document
type entry struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	Tags      []string   `bson:"tags"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

// Backend implements filemeta.CacheBackend on a MongoDB collection
type Backend struct {
	client     *mongo.Client
	collection *mongo.Collection
	ttl        time.Duration
	now        func() time.Time
}

// New connects to MongoDB, verifies the connection and creates the indexes
func New(config Config) (*Backend, error) {
	if config.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if config.Database == "" {
		return nil, errors.New("mongo database is required")
	}
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	b := NewWithCollection(client.Database(config.Database).Collection(config.Collection), config)
	b.client = client

	if err := b.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return b, nil
}

// NewWithCollection creates a backend over an existing collection
func NewWithCollection(collection *mongo.Collection, config Config) *Backend {
	return &Backend{
		collection: collection,
		ttl:        config.TTL,
		now:        time.Now,
	}
}

// EnsureIndexes creates the tag index and the TTL index on expires_at
func (b *Backend) EnsureIndexes(ctx context.Context) error {
	_, err := b.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Get retrieves a cache entry. Expired entries not yet reaped by the TTL
// monitor are reported as misses.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var doc entry
	err := b.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, filemeta.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	if doc.ExpiresAt != nil && !doc.ExpiresAt.After(b.now()) {
		return nil, filemeta.ErrCacheMiss
	}
	return doc.Value, nil
}

// Set upserts a cache entry
func (b *Backend) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	now := b.now().UTC()
	if tags == nil {
		tags = []string{}
	}
	doc := entry{Key: key, Value: value, Tags: tags, UpdatedAt: now}
	if b.ttl > 0 {
		t := now.Add(b.ttl)
		doc.ExpiresAt = &t
	}

	filter := bson.M{"_id": key}
	opts := options.Replace().SetUpsert(true)

	if _, err := b.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// InvalidateTags removes every entry labelled with any of tags
func (b *Backend) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	filter := bson.M{"tags": bson.M{"$in": tags}}
	if _, err := b.collection.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to invalidate tags: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection when the backend owns it
func (b *Backend) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Disconnect(ctx)
}
