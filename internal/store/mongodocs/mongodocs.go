// Package mongodocs is a document backend on a MongoDB collection with a compound bounding-box index.
package mongodocs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/store/remote"
)

// record is the stored form. Empty bounds keep the +Inf/-Inf corners, which no overlap filter matches.
type record struct {
	ID   int64   `bson:"_id"`
	MinX float64 `bson:"minx"`
	MinY float64 `bson:"miny"`
	MaxX float64 `bson:"maxx"`
	MaxY float64 `bson:"maxy"`
	Body []byte  `bson:"body"`
}

var errIDRange = errors.New("id exceeds int64 range")

func toRecord(d remote.Document) (record, error) {
	if d.ID > math.MaxInt64 {
		return record{}, fmt.Errorf("document %d: %w", d.ID, errIDRange)
	}
	return record{
		ID:   int64(d.ID),
		MinX: d.Bounds.MinX, MinY: d.Bounds.MinY,
		MaxX: d.Bounds.MaxX, MaxY: d.Bounds.MaxY,
		Body: d.Body,
	}, nil
}

func (r record) document() remote.Document {
	return remote.Document{
		ID:     uint64(r.ID),
		Bounds: geom.Envelope{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX, MaxY: r.MaxY},
		Body:   r.Body,
	}
}

// overlapFilter matches records whose bounds touch env.
func overlapFilter(env geom.Envelope) bson.D {
	return bson.D{
		{Key: "minx", Value: bson.D{{Key: "$lte", Value: env.MaxX}}},
		{Key: "maxx", Value: bson.D{{Key: "$gte", Value: env.MinX}}},
		{Key: "miny", Value: bson.D{{Key: "$lte", Value: env.MaxY}}},
		{Key: "maxy", Value: bson.D{{Key: "$gte", Value: env.MinY}}},
	}
}

func idFilter(id uint64) (bson.D, bool) {
	if id > math.MaxInt64 {
		return nil, false
	}
	return bson.D{{Key: "_id", Value: int64(id)}}, true
}

type Option func(*Backend)

func WithConverter(c *codec.Converter) Option {
	return func(b *Backend) { b.conv = c }
}

type Backend struct {
	client *mongo.Client
	coll   *mongo.Collection
	conv   *codec.Converter
}

var (
	_ remote.Backend = (*Backend)(nil)
	_ remote.Opener  = (*Backend)(nil)
	_ remote.Closer  = (*Backend)(nil)
)

// Connect dials uri; the collection is named after the layer.
func Connect(ctx context.Context, uri, database, layer string, opts ...Option) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	b := &Backend{
		client: client,
		coll:   client.Database(database).Collection(layer),
		conv:   codec.NewConverter(codec.Geographic2D),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func observe(call string, start time.Time) {
	observability.ObserveBackendLatency("mongo", call, time.Since(start).Seconds())
}

// Open pings the server and ensures the bounds index.
func (b *Backend) Open(ctx context.Context) error {
	if err := b.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	_, err := b.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "minx", Value: 1}, {Key: "maxx", Value: 1},
			{Key: "miny", Value: 1}, {Key: "maxy", Value: 1},
		},
		Options: options.Index().SetName("bounds"),
	})
	if err != nil {
		return fmt.Errorf("mongo bounds index: %w", err)
	}
	return nil
}

func (b *Backend) Close(ctx context.Context) error {
	if err := b.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, approx codec.ExternalGeometry) ([]remote.Document, error) {
	defer observe("query", time.Now())
	env, err := b.conv.Bounds(approx)
	if err != nil {
		return nil, err
	}
	if env.IsEmpty() {
		return nil, nil
	}
	cur, err := b.coll.Find(ctx, overlapFilter(env), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	out := make([]remote.Document, len(recs))
	for i, r := range recs {
		out[i] = r.document()
	}
	return out, nil
}

func (b *Backend) FindByID(ctx context.Context, id uint64) (remote.Document, bool, error) {
	defer observe("find", time.Now())
	f, ok := idFilter(id)
	if !ok {
		return remote.Document{}, false, nil
	}
	var r record
	err := b.coll.FindOne(ctx, f).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return remote.Document{}, false, nil
	}
	if err != nil {
		return remote.Document{}, false, fmt.Errorf("mongo find %d: %w", id, err)
	}
	return r.document(), true, nil
}

func (b *Backend) Save(ctx context.Context, doc remote.Document) error {
	defer observe("save", time.Now())
	r, err := toRecord(doc)
	if err != nil {
		return err
	}
	f, _ := idFilter(doc.ID)
	if _, err := b.coll.ReplaceOne(ctx, f, r, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongo replace %d: %w", doc.ID, err)
	}
	return nil
}

func (b *Backend) RemoveByID(ctx context.Context, id uint64) error {
	defer observe("remove", time.Now())
	f, ok := idFilter(id)
	if !ok {
		return nil
	}
	if _, err := b.coll.DeleteOne(ctx, f); err != nil {
		return fmt.Errorf("mongo delete %d: %w", id, err)
	}
	return nil
}

func (b *Backend) Count(ctx context.Context) (int, error) {
	n, err := b.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return int(n), nil
}

func (b *Backend) Scan(ctx context.Context, fn func(remote.Document) error) error {
	defer observe("scan", time.Now())
	cur, err := b.coll.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("mongo scan: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	for cur.Next(ctx) {
		var r record
		if err := cur.Decode(&r); err != nil {
			return fmt.Errorf("mongo decode: %w", err)
		}
		if err := fn(r.document()); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("mongo scan: %w", err)
	}
	return nil
}
