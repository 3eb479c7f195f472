// Package store is a thin CRUD facade over a document collection,
// parameterised by the document type. Two backends exist: Mongo, used in
// production, and Memory, used for local runs and tests.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when no document has the requested id or field value.
	ErrNotFound = errors.New("store: not found")

	// ErrConditionFailed is returned when the document exists but a guard
	// condition attached to an update or delete did not hold.
	ErrConditionFailed = errors.New("store: condition failed")
)

// Store is the set of persistence operations handlers rely on.
//
// Save does not enforce uniqueness; callers pre-check anything that must be
// unique. Get, Update and FindOne report absence as ErrNotFound, Delete as a
// false return. Every other error comes from the backend and is fatal to the
// request.
type Store[T any] interface {
	Save(ctx context.Context, doc *T) error
	Get(ctx context.Context, id primitive.ObjectID) (*T, error)
	GetAll(ctx context.Context) ([]T, error)
	FindOne(ctx context.Context, field string, value any) (*T, error)
	FindAll(ctx context.Context, field string, value any) ([]T, error)
	Update(ctx context.Context, id primitive.ObjectID, p *Patch) (*T, error)
	Delete(ctx context.Context, id primitive.ObjectID, conds ...Cond) (bool, error)
	DeleteMany(ctx context.Context, field string, value any) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// ParseID converts a hex string into an ObjectID.
func ParseID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}
