package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
)

const notificationCollectionName = "notifications"

// NotificationStore is the in-app inbox for deployments running on MongoDB.
type NotificationStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewNotificationStore creates a store backed by the notifications collection.
func NewNotificationStore(db *mongo.Database) *NotificationStore {
	return &NotificationStore{collection: db.Collection(notificationCollectionName), now: time.Now}
}

// EnsureIndexes creates the inbox listing index.
func (s *NotificationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

// Send stores the notification. Redelivery of the same id is a no-op.
func (s *NotificationStore) Send(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if _, err := s.collection.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a page of the recipient's notifications, newest first, and the total count.
func (s *NotificationStore) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	query := bson.M{"recipientId": filter.RecipientID}
	if filter.UnreadOnly {
		query["readAt"] = nil
	}

	total, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((page - 1) * size)).
		SetLimit(int64(size))

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	items := make([]models.Notification, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode notifications: %w", err)
	}
	return items, int(total), nil
}

// MarkRead stamps readAt once. It returns repository.ErrNotFound when the
// notification does not belong to the recipient.
func (s *NotificationStore) MarkRead(ctx context.Context, id, recipientID string) error {
	update := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"readAt": bson.M{"$ifNull": bson.A{"$readAt", s.now().UTC()}},
	}}}}
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id, "recipientId": recipientID}, update)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
