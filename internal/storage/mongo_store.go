package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/example/ride-pool/internal/models"
)

// MongoStore persists rides, notifications and users as documents, the shape
// the web client already consumes.
type MongoStore struct {
	client        *mongo.Client
	rides         *mongo.Collection
	notifications *mongo.Collection
	users         *mongo.Collection
}

// NewMongoStore connects and verifies the connection with a primary ping.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return NewMongoStoreFromDB(client, client.Database(database)), nil
}

func NewMongoStoreFromDB(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:        client,
		rides:         db.Collection("rides"),
		notifications: db.Collection("notifications"),
		users:         db.Collection("users"),
	}
}

// EnsureIndexes creates the query indexes and the notification TTL indexes.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	rideIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "from.coordinates", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "to.coordinates", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "creator", Value: 1}, {Key: "departureTime", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "departureTime", Value: 1}}},
	}
	if _, err := m.rides.Indexes().CreateMany(ctx, rideIndexes); err != nil {
		return err
	}
	notificationIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}}},
		// auto-delete after the retention window
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(models.NotificationRetention / time.Second)),
		},
		// documents with a null expiresAt are ignored by the TTL monitor
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := m.notifications.Indexes().CreateMany(ctx, notificationIndexes)
	return err
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoStore) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// lookupID converts a hex id for a filter. Malformed ids match nothing.
func lookupID(hex string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(hex)
	return oid, err == nil
}

func (m *MongoStore) CreateRide(ctx context.Context, r *models.Ride) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Participants == nil {
		r.Participants = []models.Participant{}
	}
	doc, err := toRideDoc(r)
	if err != nil {
		return err
	}
	_, err = m.rides.InsertOne(ctx, doc)
	return err
}

func (m *MongoStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	oid, ok := lookupID(id)
	if !ok {
		return nil, ErrNotFound
	}
	var d rideDoc
	err := m.rides.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (m *MongoStore) SaveRide(ctx context.Context, r *models.Ride) error {
	doc, err := toRideDoc(r)
	if err != nil {
		return err
	}
	res, err := m.rides.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) DeleteRide(ctx context.Context, id string) error {
	oid, ok := lookupID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := m.rides.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// rideQuery translates f. It reports false when f cannot match any ride.
func rideQuery(f RideFilter) (bson.M, bool) {
	q := bson.M{}
	creator := bson.M{}
	if f.CreatorID != "" {
		oid, ok := lookupID(f.CreatorID)
		if !ok {
			return nil, false
		}
		creator["$eq"] = oid
	}
	if f.ExcludeCreatorID != "" {
		if oid, ok := lookupID(f.ExcludeCreatorID); ok {
			creator["$ne"] = oid
		}
	}
	if len(creator) > 0 {
		q["creator"] = creator
	}
	status := bson.M{}
	if f.Status != "" {
		status["$eq"] = f.Status
	}
	if f.ExcludeStatus != "" {
		status["$ne"] = f.ExcludeStatus
	}
	if len(status) > 0 {
		q["status"] = status
	}
	if f.HasSeats {
		q["availableSeats"] = bson.M{"$gt": 0}
	}
	if !f.DepartsAfter.IsZero() {
		q["departureTime"] = bson.M{"$gt": f.DepartsAfter}
	}
	return q, true
}

func (m *MongoStore) ListRides(ctx context.Context, f RideFilter) ([]*models.Ride, error) {
	out := make([]*models.Ride, 0)
	q, ok := rideQuery(f)
	if !ok {
		return out, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "departureTime", Value: 1}})
	cursor, err := m.rides.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []rideDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

func (m *MongoStore) PullParticipant(ctx context.Context, rideID, participantID string) (*models.Ride, error) {
	rid, ok := lookupID(rideID)
	if !ok {
		return nil, ErrNotFound
	}
	pid, ok := lookupID(participantID)
	if !ok {
		return m.GetRide(ctx, rideID)
	}
	update := bson.M{"$pull": bson.M{"participants": bson.M{"_id": pid}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d rideDoc
	err := m.rides.FindOneAndUpdate(ctx, bson.M{"_id": rid}, update, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (m *MongoStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return m.CreateNotifications(ctx, []*models.Notification{n})
}

func (m *MongoStore) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	docs := make([]any, 0, len(ns))
	for _, n := range ns {
		if n.ID == "" {
			n.ID = NewID()
		}
		doc, err := toNotificationDoc(n)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	_, err := m.notifications.InsertMany(ctx, docs)
	return err
}

func (m *MongoStore) ListNotifications(ctx context.Context, recipientID string, limit int, now time.Time) ([]*models.Notification, error) {
	out := make([]*models.Notification, 0)
	recipient, ok := lookupID(recipientID)
	if !ok {
		return out, nil
	}
	q := bson.M{
		"recipient": recipient,
		"createdAt": bson.M{"$gt": now.Add(-models.NotificationRetention)},
		"$or": bson.A{
			bson.M{"expiresAt": nil},
			bson.M{"expiresAt": bson.M{"$gt": now}},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.notifications.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

func (m *MongoStore) MarkNotificationRead(ctx context.Context, id, recipientID string, now time.Time) (*models.Notification, error) {
	oid, ok := lookupID(id)
	recipient, ok2 := lookupID(recipientID)
	if !ok || !ok2 {
		return nil, ErrNotFound
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d notificationDoc
	err := m.notifications.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "recipient": recipient},
		bson.M{"$set": bson.M{"status": models.NotificationRead, "updatedAt": now}},
		opts,
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

// PurgeExpiredNotifications removes what the TTL monitor has not reached yet.
func (m *MongoStore) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.notifications.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"createdAt": bson.M{"$lte": now.Add(-models.NotificationRetention)}},
		bson.M{"expiresAt": bson.M{"$ne": nil, "$lte": now}},
	}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	oid, ok := lookupID(id)
	if !ok {
		return nil, ErrNotFound
	}
	var d userDoc
	err := m.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (m *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	doc, err := toUserDoc(u)
	if err != nil {
		return err
	}
	_, err = m.users.InsertOne(ctx, doc)
	return err
}

// UpdateUser sets the profile fields only, so fields owned by the
// registration service (password hash, tokens) survive.
func (m *MongoStore) UpdateUser(ctx context.Context, u *models.User) error {
	oid, ok := lookupID(u.ID)
	if !ok {
		return ErrNotFound
	}
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"name":           u.Name,
		"email":          u.Email,
		"phone":          u.Phone,
		"college":        u.College,
		"department":     u.Department,
		"profilePicture": u.ProfilePicture,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
