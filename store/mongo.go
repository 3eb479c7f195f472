package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicate is returned by Save when a unique index rejects the document.
var ErrDuplicate = errors.New("store: duplicate key")

const defaultTimeout = 5 * time.Second

// Mongo is a Store backed by a MongoDB collection.
type Mongo[T any] struct {
	coll    *mongo.Collection
	timeout time.Duration
}

var _ Store[struct{}] = (*Mongo[struct{}])(nil)

func NewMongo[T any](coll *mongo.Collection) *Mongo[T] {
	return &Mongo[T]{coll: coll, timeout: defaultTimeout}
}

func (m *Mongo[T]) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, m.timeout)
}

func (m *Mongo[T]) Save(ctx context.Context, doc *T) error {
	ctx, cancel := m.ctx(ctx)
	defer cancel()
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert %s: %w", m.coll.Name(), err)
	}
	return nil
}

func (m *Mongo[T]) Get(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *Mongo[T]) FindOne(ctx context.Context, field string, value any) (*T, error) {
	return m.findOne(ctx, bson.M{field: value})
}

func (m *Mongo[T]) findOne(ctx context.Context, f bson.M) (*T, error) {
	ctx, cancel := m.ctx(ctx)
	defer cancel()
	var doc T
	err := m.coll.FindOne(ctx, f).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", m.coll.Name(), err)
	}
	return &doc, nil
}

// GetAll returns every document. There is no pagination.
func (m *Mongo[T]) GetAll(ctx context.Context) ([]T, error) {
	return m.find(ctx, bson.M{})
}

func (m *Mongo[T]) FindAll(ctx context.Context, field string, value any) ([]T, error) {
	return m.find(ctx, bson.M{field: value})
}

func (m *Mongo[T]) find(ctx context.Context, f bson.M) ([]T, error) {
	ctx, cancel := m.ctx(ctx)
	defer cancel()
	cur, err := m.coll.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", m.coll.Name(), err)
	}
	defer cur.Close(ctx)

	docs := make([]T, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.coll.Name(), err)
	}
	return docs, nil
}

// Update applies p atomically: guards become part of the filter of a single
// FindOneAndUpdate, so a guarded write either fully happens or not at all.
func (m *Mongo[T]) Update(ctx context.Context, id primitive.ObjectID, p *Patch) (*T, error) {
	if p.Empty() {
		doc, err := m.findOne(ctx, filter(id, p.Conds()))
		if errors.Is(err, ErrNotFound) && len(p.Conds()) > 0 {
			return nil, m.explainMiss(ctx, id)
		}
		return doc, err
	}

	cctx, cancel := m.ctx(ctx)
	defer cancel()
	var doc T
	err := m.coll.FindOneAndUpdate(cctx,
		filter(id, p.Conds()),
		p.Document(),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if len(p.Conds()) == 0 {
			return nil, ErrNotFound
		}
		return nil, m.explainMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", m.coll.Name(), err)
	}
	return &doc, nil
}

// explainMiss tells a missing document apart from a failed guard.
func (m *Mongo[T]) explainMiss(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := m.ctx(ctx)
	defer cancel()
	n, err := m.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count %s: %w", m.coll.Name(), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (m *Mongo[T]) Delete(ctx context.Context, id primitive.ObjectID, conds ...Cond) (bool, error) {
	ctx, cancel := m.ctx(ctx)
	defer cancel()
	res, err := m.coll.DeleteOne(ctx, filter(id, conds))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", m.coll.Name(), err)
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo[T]) DeleteMany(ctx context.Context, field string, value any) (int64, error) {
	return m.deleteMany(ctx, bson.M{field: value})
}

// DeleteAll empties the collection. Only operator routes reach it.
func (m *Mongo[T]) DeleteAll(ctx context.Context) (int64, error) {
	return m.deleteMany(ctx, bson.M{})
}

func (m *Mongo[T]) deleteMany(ctx context.Context, f bson.M) (int64, error) {
	ctx, cancel := m.ctx(ctx)
	defer cancel()
	res, err := m.coll.DeleteMany(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", m.coll.Name(), err)
	}
	return res.DeletedCount, nil
}
