package store

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errNoID = errors.New("store: document has no _id")

// Memory is an in-process Store. Documents are kept in their BSON form so
// field lookups and patches follow the same bson tags as the Mongo backend.
// A single mutex serialises writes, which makes guarded updates atomic.
type Memory[T any] struct {
	mu   sync.Mutex
	docs []bson.M
}

var _ Store[struct{}] = (*Memory[struct{}])(nil)

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

func (s *Memory[T]) Save(_ context.Context, doc *T) error {
	m, err := toM(doc)
	if err != nil {
		return err
	}
	id, ok := m["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		return errNoID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(id) >= 0 {
		return ErrDuplicate
	}
	s.docs = append(s.docs, m)
	return nil
}

func (s *Memory[T]) Get(_ context.Context, id primitive.ObjectID) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return fromM[T](s.docs[i])
}

func (s *Memory[T]) GetAll(_ context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect[T](s.docs, func(bson.M) bool { return true })
}

func (s *Memory[T]) FindOne(_ context.Context, field string, value any) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.docs {
		if equal(m[field], value) {
			return fromM[T](m)
		}
	}
	return nil, ErrNotFound
}

func (s *Memory[T]) FindAll(_ context.Context, field string, value any) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect[T](s.docs, func(m bson.M) bool { return equal(m[field], value) })
}

func (s *Memory[T]) Update(_ context.Context, id primitive.ObjectID, p *Patch) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	if !holds(s.docs[i], p.Conds()) {
		return nil, ErrConditionFailed
	}

	next := copyM(s.docs[i])
	for f, v := range p.set {
		next[f] = v
	}
	for _, f := range p.unset {
		delete(next, f)
	}
	for f, d := range p.inc {
		cur, _ := toInt64(next[f])
		next[f] = cur + d.(int64)
	}
	for f, v := range p.push {
		arr, _ := next[f].(bson.A)
		next[f] = append(append(bson.A{}, arr...), v)
	}
	for f, v := range p.pull {
		arr, _ := next[f].(bson.A)
		kept := bson.A{}
		for _, e := range arr {
			if !equal(e, v) {
				kept = append(kept, e)
			}
		}
		next[f] = kept
	}

	// Round-trip through T so a patch that does not fit the schema fails
	// here instead of corrupting the stored document.
	doc, err := fromM[T](next)
	if err != nil {
		return nil, err
	}
	normal, err := toM(doc)
	if err != nil {
		return nil, err
	}
	s.docs[i] = normal
	return doc, nil
}

func (s *Memory[T]) Delete(_ context.Context, id primitive.ObjectID, conds ...Cond) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 || !holds(s.docs[i], conds) {
		return false, nil
	}
	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	return true, nil
}

func (s *Memory[T]) DeleteMany(_ context.Context, field string, value any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.docs[:0]
	var n int64
	for _, m := range s.docs {
		if equal(m[field], value) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.docs = kept
	return n, nil
}

func (s *Memory[T]) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.docs))
	s.docs = nil
	return n, nil
}

func (s *Memory[T]) index(id primitive.ObjectID) int {
	for i, m := range s.docs {
		if m["_id"] == id {
			return i
		}
	}
	return -1
}

func collect[T any](docs []bson.M, keep func(bson.M) bool) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, m := range docs {
		if !keep(m) {
			continue
		}
		doc, err := fromM[T](m)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

func holds(m bson.M, conds []Cond) bool {
	for _, c := range conds {
		switch c.Op {
		case "$eq":
			if !equal(m[c.Field], c.Value) {
				return false
			}
		case "$gte":
			have, ok := toInt64(m[c.Field])
			want, _ := toInt64(c.Value)
			if !ok || have < want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func toM(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromM[T any](m bson.M) (*T, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	var doc T
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func copyM(m bson.M) bson.M {
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// equal compares a stored BSON value with a caller-supplied one, treating
// all integer widths and all string-kinded types as interchangeable.
func equal(stored, want any) bool {
	if a, ok := toInt64(stored); ok {
		b, ok := toInt64(want)
		return ok && a == b
	}
	sv, wv := reflect.ValueOf(stored), reflect.ValueOf(want)
	if sv.IsValid() && wv.IsValid() && sv.Kind() == reflect.String && wv.Kind() == reflect.String {
		return sv.String() == wv.String()
	}
	return reflect.DeepEqual(stored, want)
}
