package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gameplace/models"
	"gameplace/reservation"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) FindDevice(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	err := s.DevicesCollection.FindOne(ctx, bson.M{"id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, reservation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) FindAvailableDevicesByType(ctx context.Context, deviceTypeID string) ([]models.Device, error) {
	return s.findDevices(ctx, bson.M{"deviceTypeId": deviceTypeID, "status": models.DeviceAvailable})
}

func (s *Store) ListDevices(ctx context.Context, deviceTypeID string) ([]models.Device, error) {
	filter := bson.M{}
	if deviceTypeID != "" {
		filter["deviceTypeId"] = deviceTypeID
	}
	return s.findDevices(ctx, filter)
}

func (s *Store) findDevices(ctx context.Context, filter bson.M) ([]models.Device, error) {
	opts := options.Find().SetSort(bson.D{{Key: "deviceTypeId", Value: 1}, {Key: "deviceNumber", Value: 1}})
	cur, err := s.DevicesCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []models.Device
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateDeviceStatus(ctx context.Context, id string, status models.DeviceStatus) error {
	res, err := s.DevicesCollection.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return reservation.ErrNotFound
	}
	return nil
}

func (s *Store) CreateDevice(ctx context.Context, d *models.Device) error {
	if _, err := s.DevicesCollection.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("device %d of type %s: %w (%v)", d.DeviceNumber, d.DeviceTypeID, reservation.ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (s *Store) CreateDeviceType(ctx context.Context, t *models.DeviceType) error {
	if _, err := s.DeviceTypesCollection.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("device type %s: %w (%v)", t.ID, reservation.ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (s *Store) FindDeviceType(ctx context.Context, id string) (*models.DeviceType, error) {
	var t models.DeviceType
	err := s.DeviceTypesCollection.FindOne(ctx, bson.M{"id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, reservation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error) {
	cur, err := s.DeviceTypesCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []models.DeviceType
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
