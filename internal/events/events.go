// Package events carries ride lifecycle changes to the event stream.
package events

import (
	"context"
	"time"

	"github.com/example/ride-pool/internal/models"
)

type Type string

const (
	RideCreated  Type = "ride.created"
	RideJoined   Type = "ride.joined"
	RideAccepted Type = "ride.accepted"
	RideRejected Type = "ride.rejected"
	RideUpdated  Type = "ride.updated"
	RideDeleted  Type = "ride.deleted"
)

func (t Type) Valid() bool {
	switch t {
	case RideCreated, RideJoined, RideAccepted, RideRejected, RideUpdated, RideDeleted:
		return true
	}
	return false
}

// RideEvent describes one change to a ride. Recipients are the users who
// should see it in realtime.
type RideEvent struct {
	Type           Type              `json:"type"`
	RideID         string            `json:"rideId"`
	ActorID        string            `json:"actorId"`
	ParticipantID  string            `json:"participantId,omitempty"`
	Recipients     []string          `json:"recipients"`
	AvailableSeats int               `json:"availableSeats"`
	Status         models.RideStatus `json:"status"`
	At             time.Time         `json:"at"`
}

// NewRideEvent snapshots r. Recipients default to the creator and every
// participant other than the actor.
func NewRideEvent(t Type, r *models.Ride, actorID string, at time.Time) RideEvent {
	seen := map[string]bool{actorID: true}
	recipients := make([]string, 0, len(r.Participants)+1)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		recipients = append(recipients, id)
	}
	add(r.Creator)
	for _, p := range r.Participants {
		add(p.UserID)
	}
	return RideEvent{
		Type:           t,
		RideID:         r.ID,
		ActorID:        actorID,
		Recipients:     recipients,
		AvailableSeats: r.AvailableSeats,
		Status:         r.Status,
		At:             at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev RideEvent) error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RideEvent) error { return nil }
