package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/world/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions содержит настройки подключения к MongoDB
type MongoOptions struct {
	URI        string // например mongodb://localhost:27017
	Database   string // например landblock
	Collection string // например biotas
}

// MongoStore хранит снимки документами {_id: guid, landblock, data}
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	codec      *Codec
	closed     atomic.Bool
}

// biotaDoc — документ коллекции; data — снимок в формате Codec
type biotaDoc struct {
	Guid      int64     `bson:"_id"`
	Landblock int32     `bson:"landblock"`
	Data      []byte    `bson:"data"`
	SavedAt   time.Time `bson:"saved_at"`
}

// NewMongoStore подключается к MongoDB, проверяет соединение и создаёт индекс по ландблоку
func NewMongoStore(ctx context.Context, opts MongoOptions, codec *Codec) (*MongoStore, error) {
	if opts.URI == "" {
		opts.URI = "mongodb://localhost:27017"
	}
	if opts.Database == "" {
		opts.Database = "landblock"
	}
	if opts.Collection == "" {
		opts.Collection = "biotas"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		codec:      codec,
	}
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "landblock", Value: 1}},
		Options: options.Index().SetName("landblock_idx"),
	}
	if _, err := s.collection.Indexes().CreateOne(connectCtx, idx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure mongo index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) toDoc(b entity.Biota) (biotaDoc, error) {
	data, err := s.codec.Encode(b)
	if err != nil {
		return biotaDoc{}, err
	}
	return biotaDoc{
		Guid:      int64(b.Guid),
		Landblock: int32(b.Landblock),
		Data:      data,
		SavedAt:   b.SavedAt.UTC(),
	}, nil
}

func (s *MongoStore) fromDoc(doc biotaDoc) (entity.Biota, error) {
	b, err := s.codec.Decode(doc.Data)
	if err != nil {
		return entity.Biota{}, fmt.Errorf("decode biota %d: %w", doc.Guid, err)
	}
	return b, nil
}

// SaveBiotas пишет пакет одним неупорядоченным BulkWrite с upsert по guid
func (s *MongoStore) SaveBiotas(ctx context.Context, biotas []entity.Biota) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(biotas) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(biotas))
	for _, b := range biotas {
		doc, err := s.toDoc(b)
		if err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.Guid}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongo bulk write: %w", err)
	}
	return nil
}

// LoadLandblock загружает снимки ландблока в порядке guid
func (s *MongoStore) LoadLandblock(ctx context.Context, landblock uint16) ([]entity.Biota, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	cur, err := s.collection.Find(ctx,
		bson.M{"landblock": int32(landblock)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	var docs []biotaDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}

	out := make([]entity.Biota, 0, len(docs))
	for _, doc := range docs {
		b, err := s.fromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// LoadBiota загружает один объект
func (s *MongoStore) LoadBiota(ctx context.Context, guid entity.ObjectGuid) (entity.Biota, error) {
	if s.closed.Load() {
		return entity.Biota{}, ErrClosed
	}

	var doc biotaDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": int64(guid)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entity.Biota{}, ErrNotFound
	}
	if err != nil {
		return entity.Biota{}, fmt.Errorf("mongo find one: %w", err)
	}
	return s.fromDoc(doc)
}

// Close отключается от MongoDB
func (s *MongoStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.client.Disconnect(ctx)
	s.codec.Close()
	return err
}
