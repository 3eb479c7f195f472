// Package db connects to MongoDB and hands out the document stores.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"jimgabang/models"
	"jimgabang/store"
)

// DB holds the collections of one database.
type DB struct {
	Client   *mongo.Client
	Hosts    *mongo.Collection
	Clients  *mongo.Collection
	Services *mongo.Collection
	Bookings *mongo.Collection
}

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri, name string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	d := New(client.Database(name))
	d.Client = client
	return d, nil
}

// New binds the collections of database.
func New(database *mongo.Database) *DB {
	return &DB{
		Client:   database.Client(),
		Hosts:    database.Collection("hosts"),
		Clients:  database.Collection("clients"),
		Services: database.Collection("services"),
		Bookings: database.Collection("bookings"),
	}
}

// EnsureIndexes creates the unique email indexes and the lookup indexes
// used by listing routes.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{d.Hosts, []mongo.IndexModel{{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}}},
		{d.Clients, []mongo.IndexModel{{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}}},
		{d.Services, []mongo.IndexModel{{Keys: bson.D{{Key: "creator", Value: 1}}}}},
		{d.Bookings, []mongo.IndexModel{
			{Keys: bson.D{{Key: "service_id", Value: 1}}},
			{Keys: bson.D{{Key: "creator", Value: 1}}},
		}},
	}
	for _, s := range specs {
		if _, err := s.coll.Indexes().CreateMany(ctx, s.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", s.coll.Name(), err)
		}
	}
	return nil
}

func (d *DB) Close(ctx context.Context) error {
	if d.Client == nil {
		return nil
	}
	return d.Client.Disconnect(ctx)
}

// Stores is the set of document stores the handlers use.
type Stores struct {
	Hosts    store.Store[models.Host]
	Clients  store.Store[models.Client]
	Services store.Store[models.Service]
	Bookings store.Store[models.Booking]
}

// Stores returns MongoDB-backed stores over d's collections.
func (d *DB) Stores() Stores {
	return Stores{
		Hosts:    store.NewMongo[models.Host](d.Hosts),
		Clients:  store.NewMongo[models.Client](d.Clients),
		Services: store.NewMongo[models.Service](d.Services),
		Bookings: store.NewMongo[models.Booking](d.Bookings),
	}
}

// MemoryStores returns empty in-process stores.
func MemoryStores() Stores {
	return Stores{
		Hosts:    store.NewMemory[models.Host](),
		Clients:  store.NewMemory[models.Client](),
		Services: store.NewMemory[models.Service](),
		Bookings: store.NewMemory[models.Booking](),
	}
}
