// Package search matches offered rides against a requested trip by the
// great-circle distance of both endpoints.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-pool/internal/geo"
	"github.com/example/ride-pool/internal/models"
	"github.com/example/ride-pool/internal/observability"
	"github.com/example/ride-pool/internal/storage"
)

const DefaultRadiusKm = 10.0

var ErrInvalidQuery = errors.New("both source and destination coordinates are required")

type Rides interface {
	ListRides(ctx context.Context, f storage.RideFilter) ([]*models.Ride, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Query struct {
	From        models.Coordinates
	To          models.Coordinates
	RequesterID string
}

type Engine struct {
	Rides    Rides
	Users    Users
	RadiusKm float64

	now func() time.Time
}

func NewEngine(rides Rides, users Users, radiusKm float64) *Engine {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Engine{Rides: rides, Users: users, RadiusKm: radiusKm, now: time.Now}
}

// Search returns active, future rides with seats left, not offered by the
// requester, whose origin and destination are each within the radius of the
// query's. Candidates are scanned linearly; results keep departure order.
func (e *Engine) Search(ctx context.Context, q Query) ([]models.RideView, error) {
	if !q.From.Valid() || !q.To.Valid() {
		return nil, ErrInvalidQuery
	}
	start := time.Now()
	observability.SearchRequests.Inc()

	cands, err := e.Rides.ListRides(ctx, storage.RideFilter{
		Status:           models.RideActive,
		HasSeats:         true,
		ExcludeCreatorID: q.RequesterID,
		DepartsAfter:     e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	creators := map[string]models.UserRef{}
	out := make([]models.RideView, 0)
	for _, r := range cands {
		if !r.From.Coordinates.Valid() || !r.To.Coordinates.Valid() {
			continue
		}
		if !geo.Within(q.From, r.From.Coordinates, e.RadiusKm) || !geo.Within(q.To, r.To.Coordinates, e.RadiusKm) {
			continue
		}
		ref, ok := creators[r.Creator]
		if !ok {
			ref = e.creator(ctx, r.Creator)
			creators[r.Creator] = ref
		}
		if r.Participants == nil {
			r.Participants = []models.Participant{}
		}
		out = append(out, models.RideView{Ride: r, Creator: ref})
	}

	observability.SearchMatches.Observe(float64(len(out)))
	observability.SearchLatency.Observe(time.Since(start).Seconds())
	return out, nil
}

func (e *Engine) creator(ctx context.Context, id string) models.UserRef {
	ref := models.UserRef{Name: "Unknown"}
	u, err := e.Users.GetUser(ctx, id)
	if err != nil {
		return ref
	}
	if u.Name != "" {
		ref.Name = u.Name
	}
	ref.Email = u.Email
	ref.Phone = u.Phone
	return ref
}
