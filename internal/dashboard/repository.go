package dashboard

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vitalpath/pulseboard/internal/tracing"
)

// ErrNotFound is returned by FindOne when no document matches.
var ErrNotFound = errors.New("document not found")

// Store is the read-only view of the document store the aggregation engine
// depends on. Implementations must propagate storage errors unmodified; the
// engine performs no retries and no partial results.
type Store interface {
	// Aggregate runs the pipeline against the collection and decodes all
	// result documents into out (a pointer to a slice).
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out any) error

	// CountDocuments counts documents matching the filter.
	CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error)

	// FindOne decodes the first document matching the filter into out.
	// Returns ErrNotFound when no document matches.
	FindOne(ctx context.Context, collection string, filter bson.M, out any) error
}

// DefaultQueryTimeout bounds every storage call. The bound is a resilience
// measure on top of the request context, not a contract change: a slow
// aggregation fails the request rather than hanging it.
const DefaultQueryTimeout = 20 * time.Second

// MongoStore implements Store over a mongo database handle.
type MongoStore struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewMongoStore creates a store over db. A non-positive timeout falls back
// to DefaultQueryTimeout.
func NewMongoStore(db *mongo.Database, timeout time.Duration) *MongoStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &MongoStore{db: db, timeout: timeout}
}

// Aggregate implements Store.
func (s *MongoStore) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out any) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, collection, tracing.DBOperationAggregate)
	defer func() { endSpan(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer func() { _ = cursor.Close(ctx) }()

	return cursor.All(ctx, out)
}

// CountDocuments implements Store.
func (s *MongoStore) CountDocuments(ctx context.Context, collection string, filter bson.M) (count int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, collection, tracing.DBOperationCount)
	defer func() { endSpan(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.db.Collection(collection).CountDocuments(ctx, filter)
}

// FindOne implements Store.
func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M, out any) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, collection, tracing.DBOperationFind)
	defer func() { endSpan(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
