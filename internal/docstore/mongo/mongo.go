// Package mongo implements the document store port on MongoDB, one mongo
// collection per logical collection. Batches run inside a session
// transaction, so the deployment must support transactions (replica set
// or mongos).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"duit/internal/docstore"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*Store)(nil)

func New(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	body := toBSON(doc, id)
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, body, opts); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) QueryByField(ctx context.Context, collection, field, value string) ([]docstore.Document, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{field: value})
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return collect(ctx, cur)
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]docstore.Document, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return collect(ctx, cur)
}

func (s *Store) Apply(ctx context.Context, b *docstore.Batch) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, op := range b.Ops {
			c := s.db.Collection(op.Collection)
			switch op.Kind {
			case docstore.OpSet:
				opts := options.Replace().SetUpsert(true)
				if _, err := c.ReplaceOne(sc, bson.M{"_id": op.ID}, toBSON(op.Doc, op.ID), opts); err != nil {
					return nil, fmt.Errorf("batch set %s/%s: %w", op.Collection, op.ID, err)
				}
			case docstore.OpUpdate:
				res, err := c.UpdateOne(sc, bson.M{"_id": op.ID}, bson.M{"$set": bson.M(op.Doc)})
				if err != nil {
					return nil, fmt.Errorf("batch update %s/%s: %w", op.Collection, op.ID, err)
				}
				if res.MatchedCount == 0 {
					return nil, fmt.Errorf("batch update %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
				}
			case docstore.OpDelete:
				if _, err := c.DeleteOne(sc, bson.M{"_id": op.ID}); err != nil {
					return nil, fmt.Errorf("batch delete %s/%s: %w", op.Collection, op.ID, err)
				}
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) NewID() string {
	return primitive.NewObjectID().Hex()
}

func collect(ctx context.Context, cur *mongo.Cursor) ([]docstore.Document, error) {
	defer cur.Close(ctx)
	var out []docstore.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, fromBSON(raw))
	}
	return out, cur.Err()
}

func toBSON(doc docstore.Document, id string) bson.M {
	out := make(bson.M, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	return out
}

func fromBSON(raw bson.M) docstore.Document {
	out := make(docstore.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		out[k] = normalize(v)
	}
	return out
}

// normalize converts bson container types into the plain map/slice forms
// the rest of the application expects from a document.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = normalize(e)
		}
		return l
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
