package storage

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/ride-pool/internal/models"
)

// Documents are keyed by ObjectID, as in the collections the registration
// service writes. Models carry the hex form.

type rideDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	Creator        primitive.ObjectID `bson:"creator"`
	From           models.Place       `bson:"from"`
	To             models.Place       `bson:"to"`
	DepartureTime  time.Time          `bson:"departureTime"`
	AvailableSeats int                `bson:"availableSeats"`
	Participants   []participantDoc   `bson:"participants"`
	Status         models.RideStatus  `bson:"status"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

type participantDoc struct {
	ID     primitive.ObjectID       `bson:"_id"`
	UserID primitive.ObjectID       `bson:"userId"`
	Name   string                   `bson:"name"`
	Phone  string                   `bson:"phone"`
	Status models.ParticipantStatus `bson:"status"`
}

type notificationDoc struct {
	ID        primitive.ObjectID          `bson:"_id"`
	Recipient primitive.ObjectID          `bson:"recipient"`
	Type      models.NotificationType     `bson:"type"`
	Ride      *primitive.ObjectID         `bson:"ride,omitempty"`
	User      *primitive.ObjectID         `bson:"user,omitempty"`
	Message   string                      `bson:"message"`
	Context   map[string]any              `bson:"context"`
	Priority  models.NotificationPriority `bson:"priority"`
	Status    models.NotificationStatus   `bson:"status"`
	CreatedAt time.Time                   `bson:"createdAt"`
	UpdatedAt time.Time                   `bson:"updatedAt"`
	ExpiresAt *time.Time                  `bson:"expiresAt"`
}

type userDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	Name           string             `bson:"name"`
	Email          string             `bson:"email"`
	Phone          string             `bson:"phone"`
	College        string             `bson:"college"`
	Department     string             `bson:"department"`
	ProfilePicture string             `bson:"profilePicture,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

func objectID(field, hex string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s: invalid id %q", field, hex)
	}
	return oid, nil
}

func optionalObjectID(field, hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	oid, err := objectID(field, hex)
	if err != nil {
		return nil, err
	}
	return &oid, nil
}

func hexOrEmpty(oid *primitive.ObjectID) string {
	if oid == nil {
		return ""
	}
	return oid.Hex()
}

func toRideDoc(r *models.Ride) (*rideDoc, error) {
	id, err := objectID("ride", r.ID)
	if err != nil {
		return nil, err
	}
	creator, err := objectID("creator", r.Creator)
	if err != nil {
		return nil, err
	}
	ps := make([]participantDoc, 0, len(r.Participants))
	for _, p := range r.Participants {
		pid, err := objectID("participant", p.ID)
		if err != nil {
			return nil, err
		}
		uid, err := objectID("participant user", p.UserID)
		if err != nil {
			return nil, err
		}
		ps = append(ps, participantDoc{ID: pid, UserID: uid, Name: p.Name, Phone: p.Phone, Status: p.Status})
	}
	return &rideDoc{
		ID:             id,
		Creator:        creator,
		From:           r.From,
		To:             r.To,
		DepartureTime:  r.DepartureTime,
		AvailableSeats: r.AvailableSeats,
		Participants:   ps,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func (d *rideDoc) model() *models.Ride {
	ps := make([]models.Participant, 0, len(d.Participants))
	for _, p := range d.Participants {
		ps = append(ps, models.Participant{ID: p.ID.Hex(), UserID: p.UserID.Hex(), Name: p.Name, Phone: p.Phone, Status: p.Status})
	}
	return &models.Ride{
		ID:             d.ID.Hex(),
		Creator:        d.Creator.Hex(),
		From:           d.From,
		To:             d.To,
		DepartureTime:  d.DepartureTime.UTC(),
		AvailableSeats: d.AvailableSeats,
		Participants:   ps,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

func toNotificationDoc(n *models.Notification) (*notificationDoc, error) {
	id, err := objectID("notification", n.ID)
	if err != nil {
		return nil, err
	}
	recipient, err := objectID("recipient", n.Recipient)
	if err != nil {
		return nil, err
	}
	ride, err := optionalObjectID("ride", n.Ride)
	if err != nil {
		return nil, err
	}
	user, err := optionalObjectID("user", n.User)
	if err != nil {
		return nil, err
	}
	return &notificationDoc{
		ID:        id,
		Recipient: recipient,
		Type:      n.Type,
		Ride:      ride,
		User:      user,
		Message:   n.Message,
		Context:   n.Context,
		Priority:  n.Priority,
		Status:    n.Status,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		ExpiresAt: n.ExpiresAt,
	}, nil
}

func (d *notificationDoc) model() *models.Notification {
	n := &models.Notification{
		ID:        d.ID.Hex(),
		Recipient: d.Recipient.Hex(),
		Type:      d.Type,
		Ride:      hexOrEmpty(d.Ride),
		User:      hexOrEmpty(d.User),
		Message:   d.Message,
		Context:   d.Context,
		Priority:  d.Priority,
		Status:    d.Status,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if n.Context == nil {
		n.Context = map[string]any{}
	}
	if d.ExpiresAt != nil {
		exp := d.ExpiresAt.UTC()
		n.ExpiresAt = &exp
	}
	return n
}

func toUserDoc(u *models.User) (*userDoc, error) {
	id, err := objectID("user", u.ID)
	if err != nil {
		return nil, err
	}
	return &userDoc{
		ID:             id,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		College:        u.College,
		Department:     u.Department,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
	}, nil
}

func (d *userDoc) model() *models.User {
	return &models.User{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		Email:          d.Email,
		Phone:          d.Phone,
		College:        d.College,
		Department:     d.Department,
		ProfilePicture: d.ProfilePicture,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}
