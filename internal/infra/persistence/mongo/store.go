// Package mongo provides a MongoDB-backed persistent store following the same
// snapshot pattern as the sqlite and postgres drivers: the in-memory store
// handles transactions and rules, and the full state is replaced per bucket in
// a single collection after every successful commit.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"communitycore/internal/infra/persistence/memory"
	"communitycore/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "communitycore"
	stateCollection = "state"
)

var mongoBuckets = []string{"members", "events", "donations", "contributions", "prayer_requests", "contents"}

// stateDoc is one persisted bucket: the bucket name keys the document and the
// payload carries the bucket snapshot as canonical JSON bytes.
type stateDoc struct {
	Bucket  string `bson:"_id"`
	Payload []byte `bson:"payload"`
}

// Store persists state to MongoDB while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	client *mongo.Client
	coll   *mongo.Collection
	mu     sync.Mutex
}

// NewStore connects to MongoDB using the provided URI and database (falling
// back to local defaults) and hydrates the in-memory store from any existing
// snapshot documents.
func NewStore(ctx context.Context, uri, database string, engine *domain.RulesEngine) (*Store, error) {
	if uri == "" {
		uri = defaultURI
	}
	if database == "" {
		database = defaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(stateCollection)
	snapshot, err := loadSnapshot(ctx, coll)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, client: client, coll: coll}, nil
}

// RunInTransaction applies the provided function within a transaction, then snapshots to MongoDB if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func loadSnapshot(ctx context.Context, coll *mongo.Collection) (memory.Snapshot, error) {
	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("find state: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var snapshot memory.Snapshot
	for cursor.Next(ctx) {
		var doc stateDoc
		if err := cursor.Decode(&doc); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode state doc: %w", err)
		}
		if len(doc.Payload) == 0 {
			continue
		}
		target, ok := snapshotBucket(&snapshot, doc.Bucket)
		if !ok {
			continue
		}
		if err := json.Unmarshal(doc.Payload, target); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", doc.Bucket, err)
		}
	}
	if err := cursor.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func snapshotBucket(snapshot *memory.Snapshot, bucket string) (any, bool) {
	switch bucket {
	case "members":
		return &snapshot.Members, true
	case "events":
		return &snapshot.Events, true
	case "donations":
		return &snapshot.Donations, true
	case "contributions":
		return &snapshot.Contributions, true
	case "prayer_requests":
		return &snapshot.PrayerRequests, true
	case "contents":
		return &snapshot.Contents, true
	default:
		return nil, false
	}
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	upsert := options.Replace().SetUpsert(true)
	for _, bucket := range mongoBuckets {
		target, _ := snapshotBucket(&snapshot, bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		doc := stateDoc{Bucket: bucket, Payload: data}
		if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": bucket}, doc, upsert); err != nil {
			return fmt.Errorf("replace %s: %w", bucket, err)
		}
	}
	return nil
}
