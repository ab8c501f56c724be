// Package mongostore is the reference primarystore.Store adapter,
// grounded on the connect-then-ping-then-wrap idiom in
// syntrixbase-syntrix's internal/storage/internal/mongo/document_provider.go:
// IterateAll reads with majority read concern, and Watch translates
// MongoDB change-stream documents into primarystore.ChangeEvent,
// preferring updateDescription.updatedFields over fullDocument on an
// Updated event so the core's "update source = only changed fields"
// contract (spec.md §9's Open Question) is actually honored.
package mongostore

import (
	"context"
	"fmt"

	"github.com/ceyewan/tablesync/internal/primarystore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
)

// Store adapts a MongoDB database to primarystore.Store, one collection
// per managed table.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and pings the server before returning, per the
// reference corpus's connect-then-verify pattern.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to primary store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging primary store: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// IterateAll streams table with read concern = majority.
func (s *Store) IterateAll(ctx context.Context, table string) (primarystore.RowIterator, error) {
	coll := s.db.Collection(table, options.Collection().SetReadConcern(readconcern.Majority()))
	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("iterating %q: %w", table, err)
	}
	return &rowIterator{cursor: cursor}, nil
}

// Watch opens a change stream on table.
func (s *Store) Watch(ctx context.Context, table string) (primarystore.ChangeStream, error) {
	coll := s.db.Collection(table)
	stream, err := coll.Watch(ctx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watching %q: %w", table, err)
	}
	return &changeStream{stream: stream}, nil
}

type rowIterator struct {
	cursor *mongo.Cursor
}

func (it *rowIterator) Next(ctx context.Context) (primarystore.Row, bool, error) {
	if !it.cursor.Next(ctx) {
		if err := it.cursor.Err(); err != nil {
			return primarystore.Row{}, false, err
		}
		return primarystore.Row{}, false, nil
	}
	var doc bson.M
	if err := it.cursor.Decode(&doc); err != nil {
		return primarystore.Row{}, false, fmt.Errorf("decoding row: %w", err)
	}
	id, fields := splitID(doc)
	return primarystore.Row{ID: id, Fields: fields}, true, nil
}

func (it *rowIterator) Close() error { return it.cursor.Close(context.Background()) }

type changeStreamDoc struct {
	OperationType     string             `bson:"operationType"`
	DocumentKey       bson.M             `bson:"documentKey"`
	FullDocument      bson.M             `bson:"fullDocument"`
	UpdateDescription *updateDescription `bson:"updateDescription"`
}

type updateDescription struct {
	UpdatedFields bson.M   `bson:"updatedFields"`
	RemovedFields []string `bson:"removedFields"`
}

type changeStream struct {
	stream *mongo.ChangeStream
}

func (c *changeStream) Next(ctx context.Context) (primarystore.ChangeEvent, bool, error) {
	if !c.stream.Next(ctx) {
		if err := c.stream.Err(); err != nil {
			return primarystore.ChangeEvent{}, false, err
		}
		return primarystore.ChangeEvent{}, false, nil
	}

	var doc changeStreamDoc
	if err := c.stream.Decode(&doc); err != nil {
		return primarystore.ChangeEvent{}, false, fmt.Errorf("decoding change event: %w", err)
	}

	id, _ := doc.DocumentKey["_id"].(string)

	switch doc.OperationType {
	case "insert":
		_, fields := splitID(doc.FullDocument)
		return primarystore.ChangeEvent{Event: primarystore.EventCreated, ID: id, Value: fields, Current: fields}, true, nil
	case "replace":
		_, fields := splitID(doc.FullDocument)
		return primarystore.ChangeEvent{Event: primarystore.EventUpdated, ID: id, Value: fields, Current: fields}, true, nil
	case "update":
		var diff map[string]any
		if doc.UpdateDescription != nil {
			diff = map[string]any(doc.UpdateDescription.UpdatedFields)
		}
		// The change stream is opened with SetFullDocument(UpdateLookup), so
		// FullDocument carries the post-image even for a partial update; use
		// it to resolve parent routing attributes the diff itself may not
		// touch.
		_, current := splitID(doc.FullDocument)
		return primarystore.ChangeEvent{Event: primarystore.EventUpdated, ID: id, Value: diff, Current: current}, true, nil
	case "delete":
		return primarystore.ChangeEvent{Event: primarystore.EventDeleted, ID: id, Value: nil}, true, nil
	default:
		return primarystore.ChangeEvent{}, false, fmt.Errorf("tablesync: unknown change-stream operation %q", doc.OperationType)
	}
}

func (c *changeStream) Close() error { return c.stream.Close(context.Background()) }

func splitID(doc bson.M) (string, map[string]any) {
	if doc == nil {
		return "", nil
	}
	fields := make(map[string]any, len(doc))
	var id string
	for k, v := range doc {
		if k == "_id" {
			if s, ok := v.(string); ok {
				id = s
			}
			continue
		}
		fields[k] = v
	}
	return id, fields
}
