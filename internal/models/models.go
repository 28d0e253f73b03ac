package models

import (
	"maps"
	"strings"
	"time"
)

// Coordinates is a [longitude, latitude] pair, GeoJSON order.
type Coordinates []float64

func (c Coordinates) Lon() float64 { return c[0] }
func (c Coordinates) Lat() float64 { return c[1] }

// Valid reports whether c is a pair within WGS84 bounds.
func (c Coordinates) Valid() bool {
	if len(c) != 2 {
		return false
	}
	return c[0] >= -180 && c[0] <= 180 && c[1] >= -90 && c[1] <= 90
}

type Place struct {
	Type        string      `json:"type" bson:"type"`
	Coordinates Coordinates `json:"coordinates" bson:"coordinates" validate:"required,lonlat"`
	Address     string      `json:"address" bson:"address" validate:"required"`
}

type RideStatus string

const (
	RideActive    RideStatus = "active"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
	// RideFull is set when a join or accept takes the last seat.
	RideFull RideStatus = "full"
)

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantAccepted ParticipantStatus = "accepted"
	ParticipantRejected ParticipantStatus = "rejected"
)

type Participant struct {
	ID     string            `json:"_id"`
	UserID string            `json:"userId"`
	Name   string            `json:"name"`
	Phone  string            `json:"phone"`
	Status ParticipantStatus `json:"status" validate:"oneof=pending accepted rejected"`
}

type Ride struct {
	ID             string        `json:"_id"`
	Creator        string        `json:"creator" validate:"required"`
	From           Place         `json:"from"`
	To             Place         `json:"to"`
	DepartureTime  time.Time     `json:"departureTime" validate:"required"`
	AvailableSeats int           `json:"availableSeats" validate:"gte=0"`
	Participants   []Participant `json:"participants" validate:"dive"`
	Status         RideStatus    `json:"status" validate:"oneof=active completed cancelled full"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ParticipantIndex returns the position of the participant entry with the
// given id, or -1.
func (r *Ride) ParticipantIndex(id string) int {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Ride) AcceptedCount() int {
	n := 0
	for _, p := range r.Participants {
		if p.Status == ParticipantAccepted {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *Ride) Clone() *Ride {
	cp := *r
	cp.From.Coordinates = append(Coordinates(nil), r.From.Coordinates...)
	cp.To.Coordinates = append(Coordinates(nil), r.To.Coordinates...)
	cp.Participants = append([]Participant(nil), r.Participants...)
	return &cp
}

type User struct {
	ID             string    `json:"_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	College        string    `json:"college"`
	Department     string    `json:"department"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserRef is the populated form of a user reference.
type UserRef struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// UserSummary is the populated form of the user who triggered a notification.
type UserSummary struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// RideView is a ride with its creator populated.
type RideView struct {
	*Ride
	Creator UserRef `json:"creator"`
}

type NotificationType string

const (
	NotifyRideJoin         NotificationType = "RIDE_JOIN"
	NotifyRideCancel       NotificationType = "RIDE_CANCEL"
	NotifyRideUpdate       NotificationType = "RIDE_UPDATE"
	NotifyRideRequest      NotificationType = "RIDE_REQUEST"
	NotifyRideConfirmation NotificationType = "RIDE_CONFIRMATION"
	NotifyRideRejection    NotificationType = "RIDE_REJECTION"

	NotifyUserProfileUpdate NotificationType = "USER_PROFILE_UPDATE"
	NotifyUserSecurityAlert NotificationType = "USER_SECURITY_ALERT"

	NotifySystemMaintenance NotificationType = "SYSTEM_MAINTENANCE"
	NotifySystemUpdate      NotificationType = "SYSTEM_UPDATE"
)

var notificationTypes = map[NotificationType]bool{
	NotifyRideJoin: true, NotifyRideCancel: true, NotifyRideUpdate: true,
	NotifyRideRequest: true, NotifyRideConfirmation: true, NotifyRideRejection: true,
	NotifyUserProfileUpdate: true, NotifyUserSecurityAlert: true,
	NotifySystemMaintenance: true, NotifySystemUpdate: true,
}

// types that must name the user who triggered them
var userRequiredTypes = map[NotificationType]bool{
	NotifyRideJoin: true, NotifyRideCancel: true, NotifyRideUpdate: true,
	NotifyRideRequest: true, NotifyRideConfirmation: true, NotifyRideRejection: true,
	NotifyUserProfileUpdate: true,
}

func (t NotificationType) Valid() bool        { return notificationTypes[t] }
func (t NotificationType) RequiresRide() bool { return strings.HasPrefix(string(t), "RIDE_") }
func (t NotificationType) RequiresUser() bool { return userRequiredTypes[t] }

type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "LOW"
	PriorityMedium   NotificationPriority = "MEDIUM"
	PriorityHigh     NotificationPriority = "HIGH"
	PriorityCritical NotificationPriority = "CRITICAL"
)

func (p NotificationPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationUnread   NotificationStatus = "UNREAD"
	NotificationRead     NotificationStatus = "READ"
	NotificationArchived NotificationStatus = "ARCHIVED"
)

const (
	// NotificationRetention is how long any notification is kept.
	NotificationRetention = 30 * 24 * time.Hour
	// CriticalNotificationTTL bounds CRITICAL notifications.
	CriticalNotificationTTL = 7 * 24 * time.Hour
)

type Notification struct {
	ID        string               `json:"_id"`
	Recipient string               `json:"recipient"`
	Type      NotificationType     `json:"type"`
	Ride      string               `json:"ride,omitempty"`
	User      string               `json:"user,omitempty"`
	Message   string               `json:"message"`
	Context   map[string]any       `json:"context"`
	Priority  NotificationPriority `json:"priority"`
	Status    NotificationStatus   `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
	ExpiresAt *time.Time           `json:"expiresAt"`
}

// Clone copies n including its context map and expiry.
func (n *Notification) Clone() *Notification {
	cp := *n
	if n.Context != nil {
		cp.Context = maps.Clone(n.Context)
	}
	if n.ExpiresAt != nil {
		exp := *n.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return &cp
}

func (n *Notification) MarkAsRead(now time.Time) {
	n.Status = NotificationRead
	n.UpdatedAt = now
}

// Expired reports whether n is past its retention window or explicit expiry.
func (n *Notification) Expired(now time.Time) bool {
	if n.ExpiresAt != nil && !now.Before(*n.ExpiresAt) {
		return true
	}
	return !now.Before(n.CreatedAt.Add(NotificationRetention))
}

type RideSummary struct {
	ID            string    `json:"_id"`
	From          Place     `json:"from"`
	To            Place     `json:"to"`
	DepartureTime time.Time `json:"departureTime"`
}

// NotificationView is a notification with ride and triggering user populated.
type NotificationView struct {
	*Notification
	Ride *RideSummary `json:"ride"`
	User *UserSummary `json:"user"`
}
