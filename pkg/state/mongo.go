package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/palette"
)

// Mongo defaults.
const (
	DefaultMongoDatabase = "texpal"
	DefaultSessionName   = "default"

	sessionsCollection = "sessions"
	locksCollection    = "locks"
)

// StaleLockAge is how old a lock document must be before another build may
// take it over. It covers builds killed without releasing their lock.
var StaleLockAge = 30 * time.Minute

// MongoStore keeps sessions as documents in MongoDB. The session name is
// the document ID, so several projects can share a database.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	locks    *mongo.Collection
	name     string
	owner    string
}

// sessionDoc is the stored form. The snapshot is kept as its JSON encoding
// so the file and Mongo backends share one format.
type sessionDoc struct {
	ID      string    `bson:"_id"`
	Version int       `bson:"version"`
	RunID   string    `bson:"run_id"`
	SavedAt time.Time `bson:"saved_at"`
	Data    []byte    `bson:"data"`
}

type lockDoc struct {
	ID       string    `bson:"_id"`
	Owner    string    `bson:"owner"`
	Acquired time.Time `bson:"acquired"`
}

// mongoTarget is a parsed store URI.
type mongoTarget struct {
	URI      string // connection string without texpal parameters
	Database string
	Session  string
}

// parseMongoURI splits the texpal-specific "session" query parameter and the
// database path off a MongoDB connection string.
func parseMongoURI(raw string) (mongoTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return mongoTarget{}, fmt.Errorf("invalid mongodb uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return mongoTarget{}, fmt.Errorf("invalid mongodb uri scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return mongoTarget{}, errors.New("invalid mongodb uri: missing host")
	}
	t := mongoTarget{
		Database: strings.Trim(u.Path, "/"),
		Session:  u.Query().Get("session"),
	}
	if t.Database == "" {
		t.Database = DefaultMongoDatabase
	}
	if t.Session == "" {
		t.Session = DefaultSessionName
	}
	q := u.Query()
	q.Del("session")
	u.RawQuery = q.Encode()
	t.URI = u.String()
	return t, nil
}

// NewMongoStore connects to MongoDB and checks the connection.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	t, err := parseMongoURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(t.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	db := client.Database(t.Database)
	return &MongoStore{
		client:   client,
		sessions: db.Collection(sessionsCollection),
		locks:    db.Collection(locksCollection),
		name:     t.Session,
		owner:    uuid.NewString(),
	}, nil
}

// Lock inserts the lock document for this session, retrying while another
// owner holds it.
func (s *MongoStore) Lock(ctx context.Context) (func() error, error) {
	start := time.Now()
	err := s.acquire(ctx)
	observability.Store().OnLock(ctx, "mongo", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return func() error {
		_, err := s.locks.DeleteOne(context.Background(), bson.M{"_id": s.name, "owner": s.owner})
		return err
	}, nil
}

func (s *MongoStore) acquire(ctx context.Context) error {
	for {
		cutoff := time.Now().Add(-StaleLockAge)
		if _, err := s.locks.DeleteOne(ctx, bson.M{"_id": s.name, "acquired": bson.M{"$lt": cutoff}}); err != nil {
			return fmt.Errorf("clear stale lock: %w", err)
		}
		_, err := s.locks.InsertOne(ctx, lockDoc{ID: s.name, Owner: s.owner, Acquired: time.Now()})
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrLocked, s.name, ctx.Err())
		case <-time.After(lockRetry * 5):
		}
	}
}

// Load fetches the session document.
func (s *MongoStore) Load(ctx context.Context) (snap *palette.Snapshot, err error) {
	start := time.Now()
	defer func() { observability.Store().OnLoad(ctx, "mongo", time.Since(start), err) }()

	var doc sessionDoc
	err = s.sessions.FindOne(ctx, bson.M{"_id": s.name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", s.name, err)
	}
	if doc.Version != palette.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	return decode(doc.Data)
}

// Save upserts the session document.
func (s *MongoStore) Save(ctx context.Context, snap *palette.Snapshot) (err error) {
	start := time.Now()
	size := 0
	defer func() { observability.Store().OnSave(ctx, "mongo", size, time.Since(start), err) }()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	size = len(data)
	doc := sessionDoc{
		ID:      s.name,
		Version: snap.Version,
		RunID:   snap.RunID,
		SavedAt: snap.SavedAt,
		Data:    data,
	}
	_, err = s.sessions.ReplaceOne(ctx, bson.M{"_id": s.name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.name, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)
