package subscribers

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName holds one document per region.
const CollectionName = "notifications"

// DatabaseProvider hands out the connected database. *pkg/mongo.Conn
// implements it and connects on first use.
type DatabaseProvider interface {
	Database(ctx context.Context) (*mongo.Database, error)
}

type regionDoc struct {
	Region          string         `bson:"region"`
	SubscribeList   []string       `bson:"subscribeList"`
	UnsubscribeList []string       `bson:"unsubscribeList"`
	InviteHistory   []InviteRecord `bson:"inviteHistory,omitempty"`
}

// MongoStore is the production Store.
type MongoStore struct {
	db DatabaseProvider
}

func NewMongoStore(db DatabaseProvider) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) collection(ctx context.Context) (*mongo.Collection, error) {
	db, err := s.db.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(CollectionName), nil
}

func (s *MongoStore) GetSubscriberList(ctx context.Context, region string) ([]string, error) {
	doc, err := s.find(ctx, region, "subscribeList")
	if err != nil {
		return nil, err
	}
	return doc.SubscribeList, nil
}

func (s *MongoStore) GetUnsubscribedList(ctx context.Context, region string) ([]string, error) {
	doc, err := s.find(ctx, region, "unsubscribeList")
	if err != nil {
		return nil, err
	}
	return doc.UnsubscribeList, nil
}

func (s *MongoStore) IsSubscribed(ctx context.Context, email, region string) (bool, error) {
	return s.contains(ctx, "subscribeList", email, region)
}

func (s *MongoStore) IsUnsubscribed(ctx context.Context, email, region string) (bool, error) {
	return s.contains(ctx, "unsubscribeList", email, region)
}

func (s *MongoStore) AddToSubList(ctx context.Context, email, region string) error {
	return s.update(ctx, region, bson.D{{Key: "$addToSet", Value: bson.D{{Key: "subscribeList", Value: email}}}})
}

func (s *MongoStore) RemoveFromSubList(ctx context.Context, email, region string) error {
	return s.update(ctx, region, bson.D{{Key: "$pull", Value: bson.D{{Key: "subscribeList", Value: email}}}})
}

func (s *MongoStore) AddToUnsubList(ctx context.Context, email, region string) error {
	return s.update(ctx, region, bson.D{{Key: "$addToSet", Value: bson.D{{Key: "unsubscribeList", Value: email}}}})
}

func (s *MongoStore) RemoveFromUnsubList(ctx context.Context, email, region string) error {
	return s.update(ctx, region, bson.D{{Key: "$pull", Value: bson.D{{Key: "unsubscribeList", Value: email}}}})
}

func (s *MongoStore) AddToInviteHistory(ctx context.Context, region string, rec InviteRecord) error {
	return s.update(ctx, region, bson.D{{Key: "$push", Value: bson.D{{Key: "inviteHistory", Value: rec}}}})
}

func (s *MongoStore) EnsureRegion(ctx context.Context, region string) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.UpdateOne(ctx,
		bson.D{{Key: "region", Value: region}},
		bson.D{{Key: "$setOnInsert", Value: regionDoc{
			Region:          region,
			SubscribeList:   []string{},
			UnsubscribeList: []string{},
		}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("subscribers: ensure region %q: %w", region, err)
	}
	return nil
}

func (s *MongoStore) find(ctx context.Context, region, field string) (regionDoc, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return regionDoc{}, err
	}
	var doc regionDoc
	err = coll.FindOne(ctx,
		bson.D{{Key: "region", Value: region}},
		options.FindOne().SetProjection(bson.D{{Key: field, Value: 1}}),
	).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return regionDoc{}, RegionNotFound(region)
	case err != nil:
		return regionDoc{}, fmt.Errorf("subscribers: find region %q: %w", region, err)
	}
	return doc, nil
}

func (s *MongoStore) contains(ctx context.Context, field, email, region string) (bool, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return false, err
	}
	n, err := coll.CountDocuments(ctx,
		bson.D{{Key: "region", Value: region}, {Key: field, Value: email}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("subscribers: lookup %s: %w", field, err)
	}
	if n > 0 {
		return true, nil
	}

	regions, err := coll.CountDocuments(ctx, bson.D{{Key: "region", Value: region}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("subscribers: lookup region %q: %w", region, err)
	}
	if regions == 0 {
		return false, RegionNotFound(region)
	}
	return false, nil
}

func (s *MongoStore) update(ctx context.Context, region string, update bson.D) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx, bson.D{{Key: "region", Value: region}}, update)
	if err != nil {
		return fmt.Errorf("subscribers: update region %q: %w", region, err)
	}
	if res.MatchedCount == 0 {
		return RegionNotFound(region)
	}
	return nil
}

var (
	_ Store = (*MongoStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
