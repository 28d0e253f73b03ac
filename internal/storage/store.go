package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/ride-pool/internal/models"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("storage: not found")

// NewID returns a fresh 24-hex document id. Every backend uses the same
// format so ids survive a backend switch.
func NewID() string { return primitive.NewObjectID().Hex() }

// ValidID reports whether id has the document id format.
func ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// RideFilter narrows ListRides. Zero values do not filter.
type RideFilter struct {
	CreatorID        string
	ExcludeCreatorID string
	Status           models.RideStatus
	ExcludeStatus    models.RideStatus
	HasSeats         bool
	DepartsAfter     time.Time
}

// Match applies the filter to a single ride.
func (f RideFilter) Match(r *models.Ride) bool {
	if f.CreatorID != "" && r.Creator != f.CreatorID {
		return false
	}
	if f.ExcludeCreatorID != "" && r.Creator == f.ExcludeCreatorID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.ExcludeStatus != "" && r.Status == f.ExcludeStatus {
		return false
	}
	if f.HasSeats && r.AvailableSeats <= 0 {
		return false
	}
	if !f.DepartsAfter.IsZero() && !r.DepartureTime.After(f.DepartsAfter) {
		return false
	}
	return true
}

// RideStore defines persistence operations for rides. ListRides always
// returns rides ordered by departure time ascending.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	SaveRide(ctx context.Context, r *models.Ride) error
	DeleteRide(ctx context.Context, id string) error
	ListRides(ctx context.Context, f RideFilter) ([]*models.Ride, error)
	// PullParticipant removes the participant entry in one atomic update and
	// returns the ride as stored afterwards. Unknown participant ids are a no-op.
	PullParticipant(ctx context.Context, rideID, participantID string) (*models.Ride, error)
}

// NotificationStore persists notifications. Expired records are never
// returned by ListNotifications even if they have not been purged yet.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateNotifications(ctx context.Context, ns []*models.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int, now time.Time) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string, now time.Time) (*models.Notification, error)
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
}

// Store is a complete backend.
type Store interface {
	RideStore
	NotificationStore
	UserStore
	Close(ctx context.Context) error
}
