package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the MongoDB implementation of the reservation and device stores.
type Store struct {
	Client                 *mongo.Client
	ReservationsCollection *mongo.Collection
	DevicesCollection      *mongo.Collection
	DeviceTypesCollection  *mongo.Collection
	CountersCollection     *mongo.Collection
}

// Connect dials MongoDB and binds the collections of database dbName.
// Transactions need a replica set (a single-node one is enough).
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	database := client.Database(dbName)
	s := &Store{
		Client:                 client,
		ReservationsCollection: database.Collection("reservations"),
		DevicesCollection:      database.Collection("devices"),
		DeviceTypesCollection:  database.Collection("devicetypes"),
		CountersCollection:     database.Collection("counters"),
	}
	log.Printf("[DB] connected to %s", dbName)
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// EnsureIndexes creates the lookup and uniqueness indexes the stores rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	plan := map[*mongo.Collection][]mongo.IndexModel{
		s.ReservationsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "reservationNumber", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: -1}}},
		},
		s.DevicesCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "deviceTypeId", Value: 1}, {Key: "deviceNumber", Value: 1}}, Options: unique},
		},
		s.DeviceTypesCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
		},
	}
	for coll, idx := range plan {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// WithTx runs fn inside a MongoDB transaction. fn must use the ctx it is given.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
