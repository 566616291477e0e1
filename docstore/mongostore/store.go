// Package mongostore backs docstore.Store with MongoDB. Document ids are the hex
// form of the generated ObjectID.
package mongostore

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-client/docstore"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ docstore.Store = (*Store)(nil)

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials uri and verifies the server is reachable. Close the returned
// client with Disconnect.
func Connect(ctx context.Context, uri, database string) (*Store, *mongo.Client, error) {
	if uri == "" {
		return nil, nil, errors.New("[mongostore.Connect] uri is required")
	}
	if database == "" {
		return nil, nil, errors.New("[mongostore.Connect] database is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, errors.Wrap(err, "[mongostore.Connect] mongo.Connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, errors.Wrap(err, "[mongostore.Connect] Ping")
	}
	return New(client.Database(database)), client, nil
}

func (s *Store) ListCollection(ctx context.Context, collection string) ([]docstore.Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrapf(err, "[Store.ListCollection] Find %s", collection)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, errors.Wrapf(err, "[Store.ListCollection] decode %s", collection)
	}

	docs := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, toDocument(m))
	}
	return docs, nil
}

func (s *Store) AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error) {
	result, err := s.db.Collection(collection).InsertOne(ctx, toBSON(fields))
	if err != nil {
		return "", errors.Wrapf(err, "[Store.AddDocument] InsertOne %s", collection)
	}
	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.Errorf("[Store.AddDocument] unexpected inserted id type %T", result.InsertedID)
	}
	return oid.Hex(), nil
}

// UpdateDocument replaces every field of the document; fields left out are removed.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return docstore.ErrNotFound
	}
	result, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": objectID}, toBSON(fields))
	if err != nil {
		return errors.Wrapf(err, "[Store.UpdateDocument] ReplaceOne %s/%s", collection, id)
	}
	if result.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return docstore.ErrNotFound
	}
	result, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return errors.Wrapf(err, "[Store.DeleteDocument] DeleteOne %s/%s", collection, id)
	}
	if result.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// toBSON drops any caller supplied _id; ids are owned by the store.
func toBSON(fields map[string]any) bson.M {
	doc := bson.M{}
	for k, v := range fields {
		if k != "_id" {
			doc[k] = v
		}
	}
	return doc
}

func toDocument(m bson.M) docstore.Document {
	doc := docstore.Document{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		if k == "_id" {
			switch id := v.(type) {
			case primitive.ObjectID:
				doc.ID = id.Hex()
			default:
				doc.ID = fmt.Sprint(id)
			}
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}
