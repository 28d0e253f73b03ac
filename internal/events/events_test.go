package events

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-pool/internal/models"
)

func TestNewRideEventRecipientsSkipActor(t *testing.T) {
	r := &models.Ride{
		ID:      "r1",
		Creator: "creator",
		Participants: []models.Participant{
			{ID: "p1", UserID: "a"},
			{ID: "p2", UserID: "b"},
			{ID: "p3", UserID: "a"},
		},
		AvailableSeats: 1,
		Status:         models.RideActive,
	}
	ev := NewRideEvent(RideUpdated, r, "creator", time.Now())
	if len(ev.Recipients) != 2 || ev.Recipients[0] != "a" || ev.Recipients[1] != "b" {
		t.Fatalf("unexpected recipients %v", ev.Recipients)
	}

	ev = NewRideEvent(RideJoined, r, "b", time.Now())
	if len(ev.Recipients) != 2 || ev.Recipients[0] != "creator" || ev.Recipients[1] != "a" {
		t.Fatalf("unexpected recipients %v", ev.Recipients)
	}
}

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	msg, err := Encode(RideEvent{Type: RideAccepted, RideID: "r1", ActorID: "c", ParticipantID: "p1", Recipients: []string{"u1"}, At: at})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(msg.Key) != "r1" {
		t.Fatalf("expected ride id key, got %q", msg.Key)
	}
	ev, err := Decode(msg.Value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.ParticipantID != "p1" || !ev.At.Equal(at) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ride.teleported","rideId":"r1"}`))
	var ute *UnknownTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Fatal("expected json error")
	}
}
