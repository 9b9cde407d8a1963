package db

import (
	"context"
	"errors"
	"fmt"

	"gameplace/models"
	"gameplace/reservation"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	return s.findOne(ctx, bson.M{"id": id})
}

func (s *Store) FindByNumber(ctx context.Context, number string) (*models.Reservation, error) {
	return s.findOne(ctx, bson.M{"reservationNumber": number})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.Reservation, error) {
	var r models.Reservation
	err := s.ReservationsCollection.FindOne(ctx, filter).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, reservation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) Save(ctx context.Context, r *models.Reservation) error {
	if _, err := s.ReservationsCollection.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("reservation %s: %w (%v)", r.ReservationNumber, reservation.ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (s *Store) Update(ctx context.Context, r *models.Reservation) error {
	res, err := s.ReservationsCollection.ReplaceOne(ctx, bson.M{"id": r.ID}, r)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return reservation.ErrNotFound
	}
	return nil
}

func (s *Store) FindByDeviceAndTimeSlot(ctx context.Context, deviceID, date string, slot models.TimeSlot) ([]models.Reservation, error) {
	filter := bson.M{
		"deviceId": deviceID,
		"date":     bson.M{"$in": reservation.NeighbourDates(date)},
		"status":   bson.M{"$in": models.ActiveStatuses},
	}
	cur, err := s.ReservationsCollection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []models.Reservation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) NextSequence(ctx context.Context, day string) (int, error) {
	var counter struct {
		Seq int `bson:"seq"`
	}
	err := s.CountersCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": "reservation:" + day},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (s *Store) List(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, int64, error) {
	filter := listFilter(f)
	total, err := s.ReservationsCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: -1},
		{Key: "timeSlot.startHour", Value: 1},
		{Key: "reservationNumber", Value: 1},
	})
	if f.Limit > 0 {
		page := max(f.Page, 1)
		opts.SetSkip(int64((page - 1) * f.Limit)).SetLimit(int64(f.Limit))
	}
	cur, err := s.ReservationsCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var out []models.Reservation
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func listFilter(f models.ReservationFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.DeviceTypeID != "" {
		filter["deviceTypeId"] = f.DeviceTypeID
	}
	if f.From != "" || f.To != "" {
		dateRange := bson.M{}
		if f.From != "" {
			dateRange["$gte"] = f.From
		}
		if f.To != "" {
			dateRange["$lte"] = f.To
		}
		filter["date"] = dateRange
	}
	return filter
}
