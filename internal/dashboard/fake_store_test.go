package dashboard

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeStore is an in-memory Store for tests. Aggregations are answered by
// the onAggregate hook; counts and lookups by per-collection maps. Call
// recording is locked because the admin panel issues calls concurrently.
type fakeStore struct {
	onAggregate func(collection string, pipeline mongo.Pipeline) (any, error)
	counts      map[string]int64
	countErr    error
	findOne     func(collection string, filter bson.M) (any, error)

	mu             sync.Mutex
	aggregateCalls []aggregateCall
	countCalls     []countCall
}

type aggregateCall struct {
	collection string
	pipeline   mongo.Pipeline
}

type countCall struct {
	collection string
	filter     bson.M
}

func (f *fakeStore) Aggregate(_ context.Context, collection string, pipeline mongo.Pipeline, out any) error {
	f.mu.Lock()
	f.aggregateCalls = append(f.aggregateCalls, aggregateCall{collection, pipeline})
	f.mu.Unlock()
	if f.onAggregate == nil {
		return nil
	}
	v, err := f.onAggregate(collection, pipeline)
	if err != nil {
		return err
	}
	if v != nil {
		reflect.ValueOf(out).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func (f *fakeStore) CountDocuments(_ context.Context, collection string, filter bson.M) (int64, error) {
	f.mu.Lock()
	f.countCalls = append(f.countCalls, countCall{collection, filter})
	f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[collection], nil
}

func (f *fakeStore) FindOne(_ context.Context, collection string, filter bson.M, out any) error {
	if f.findOne == nil {
		return ErrNotFound
	}
	v, err := f.findOne(collection, filter)
	if err != nil {
		return err
	}
	reflect.ValueOf(out).Elem().Set(reflect.ValueOf(v))
	return nil
}

// newTestService builds a Service over the fake with a frozen clock.
func newTestService(t interface {
	Helper()
	Fatalf(string, ...any)
}, store *fakeStore, opts ...func(*Config)) *Service {
	t.Helper()
	cfg := Config{Store: store}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.now = func() time.Time {
		return time.Date(2025, 6, 15, 11, 30, 0, 0, svc.loc)
	}
	return svc
}

// pipelineStages flattens a pipeline's stage names for assertions.
func pipelineStages(p mongo.Pipeline) []string {
	names := make([]string, 0, len(p))
	for _, stage := range p {
		if len(stage) > 0 {
			names = append(names, stage[0].Key)
		}
	}
	return names
}

// stageValue returns the first stage with the given operator, or nil.
func stageValue(p mongo.Pipeline, operator string) any {
	for _, stage := range p {
		if len(stage) > 0 && stage[0].Key == operator {
			return stage[0].Value
		}
	}
	return nil
}
