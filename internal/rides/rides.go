// Package rides implements the ride lifecycle: offering, joining, accepting
// and rejecting participants, updating and removing rides.
//
// Read-modify-write sequences here are not atomic. Two joins racing for the
// last seat can both succeed; only participant removal is a single update.
package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/example/ride-pool/internal/events"
	"github.com/example/ride-pool/internal/models"
	"github.com/example/ride-pool/internal/notify"
	"github.com/example/ride-pool/internal/observability"
	"github.com/example/ride-pool/internal/storage"
)

var (
	ErrRideNotFound        = errors.New("ride not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNoSeats             = errors.New("no seats available")
	ErrAlreadyAccepted     = errors.New("request already accepted")
	ErrNotCreator          = errors.New("not the ride creator")
)

type Store interface {
	storage.RideStore
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Notifier interface {
	Emit(ctx context.Context, in notify.Input) (*models.Notification, error)
	EmitMany(ctx context.Context, ins []notify.Input) ([]*models.Notification, error)
}

type Service struct {
	store    Store
	notifier Notifier
	events   events.Publisher
	logger   *slog.Logger
	validate *validator.Validate
	sanitize *bluemonday.Policy
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		events:   pub,
		logger:   logger,
		validate: newValidator(),
		sanitize: bluemonday.StrictPolicy(),
		now:      time.Now,
	}
}

type CreateInput struct {
	From           models.Place `json:"from"`
	To             models.Place `json:"to"`
	DepartureTime  time.Time    `json:"departureTime"`
	AvailableSeats int          `json:"availableSeats"`
}

// UpdateInput is a partial patch; nil fields are left unchanged.
type UpdateInput struct {
	From           *models.Place      `json:"from"`
	To             *models.Place      `json:"to"`
	DepartureTime  *time.Time         `json:"departureTime"`
	AvailableSeats *int               `json:"availableSeats"`
	Status         *models.RideStatus `json:"status"`
}

func (s *Service) cleanPlace(p models.Place) models.Place {
	if p.Type == "" {
		p.Type = "Point"
	}
	p.Address = s.sanitize.Sanitize(p.Address)
	return p
}

func (s *Service) Create(ctx context.Context, creatorID string, in CreateInput) (*models.RideView, error) {
	r := &models.Ride{
		Creator:        creatorID,
		From:           s.cleanPlace(in.From),
		To:             s.cleanPlace(in.To),
		DepartureTime:  in.DepartureTime.UTC(),
		AvailableSeats: in.AvailableSeats,
		Participants:   []models.Participant{},
		Status:         models.RideActive,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.validateRide(r, true); err != nil {
		return nil, err
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	observability.RidesCreated.Inc()
	s.publish(ctx, events.NewRideEvent(events.RideCreated, r, creatorID, s.now()))
	return s.view(ctx, r, nil), nil
}

// Browse lists rides that still have seats, soonest first.
func (s *Service) Browse(ctx context.Context) ([]models.RideView, error) {
	rs, err := s.store.ListRides(ctx, storage.RideFilter{HasSeats: true, ExcludeStatus: models.RideFull})
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	return s.views(ctx, rs), nil
}

// Mine lists the rides offered by userID.
func (s *Service) Mine(ctx context.Context, userID string) ([]models.RideView, error) {
	rs, err := s.store.ListRides(ctx, storage.RideFilter{CreatorID: userID})
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	return s.views(ctx, rs), nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.RideView, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, r, nil), nil
}

// Join records a pending request and reserves a seat for it.
func (s *Service) Join(ctx context.Context, rideID, userID string) (*models.RideView, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	r, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.AvailableSeats <= 0 {
		return nil, ErrNoSeats
	}

	p := models.Participant{
		ID:     storage.NewID(),
		UserID: user.ID,
		Name:   user.Name,
		Phone:  user.Phone,
		Status: models.ParticipantPending,
	}
	r.Participants = append(r.Participants, p)
	takeSeat(r)
	if err := s.store.SaveRide(ctx, r); err != nil {
		return nil, fmt.Errorf("save ride: %w", err)
	}
	observability.RideJoins.Inc()

	// joining notifies nobody; the creator sees the request on the next fetch
	ev := events.NewRideEvent(events.RideJoined, r, userID, s.now())
	ev.ParticipantID = p.ID
	s.publish(ctx, ev)
	return s.view(ctx, r, nil), nil
}

// Accept confirms a pending request. It takes another seat, on top of the one
// reserved at join time.
func (s *Service) Accept(ctx context.Context, rideID, participantID, actorID string) (*models.RideView, error) {
	r, err := s.loadOwned(ctx, rideID, actorID)
	if err != nil {
		return nil, err
	}
	idx := r.ParticipantIndex(participantID)
	if idx < 0 {
		return nil, ErrParticipantNotFound
	}
	if r.Participants[idx].Status == models.ParticipantAccepted {
		return nil, ErrAlreadyAccepted
	}
	if r.AcceptedCount() >= r.AvailableSeats {
		return nil, ErrNoSeats
	}

	r.Participants[idx].Status = models.ParticipantAccepted
	takeSeat(r)
	if err := s.store.SaveRide(ctx, r); err != nil {
		return nil, fmt.Errorf("save ride: %w", err)
	}
	observability.RideAccepts.Inc()

	p := r.Participants[idx]
	if _, err := s.notifier.Emit(ctx, notify.Input{
		Recipient: p.UserID,
		Type:      models.NotifyRideConfirmation,
		Ride:      r.ID,
		User:      actorID,
		Message:   fmt.Sprintf("Your ride request has been accepted for ride from %s to %s", r.From.Address, r.To.Address),
	}); err != nil {
		s.logger.Warn("failed to create notification", "ride_id", r.ID, "participant_id", p.UserID, "error", err)
	}

	ev := events.NewRideEvent(events.RideAccepted, r, actorID, s.now())
	ev.ParticipantID = participantID
	s.publish(ctx, ev)
	return s.view(ctx, r, nil), nil
}

// Reject removes the participant entry. The seat taken at join time is not
// given back.
func (s *Service) Reject(ctx context.Context, rideID, participantID, actorID string) (*models.RideView, error) {
	before, err := s.loadOwned(ctx, rideID, actorID)
	if err != nil {
		return nil, err
	}
	idx := before.ParticipantIndex(participantID)
	if idx < 0 {
		return nil, ErrParticipantNotFound
	}
	removed := before.Participants[idx]

	r, err := s.store.PullParticipant(ctx, rideID, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remove participant: %w", err)
	}
	observability.RideRejects.Inc()

	if _, err := s.notifier.Emit(ctx, notify.Input{
		Recipient: removed.UserID,
		Type:      models.NotifyRideCancel,
		Ride:      r.ID,
		User:      actorID,
		Message:   fmt.Sprintf("Your ride request has been rejected for ride from %s to %s", before.From.Address, before.To.Address),
	}); err != nil {
		s.logger.Warn("failed to create notification", "ride_id", r.ID, "participant_id", removed.UserID, "error", err)
	}

	ev := events.NewRideEvent(events.RideRejected, r, actorID, s.now())
	ev.ParticipantID = participantID
	ev.Recipients = appendMissing(ev.Recipients, removed.UserID)
	s.publish(ctx, ev)
	return s.view(ctx, r, nil), nil
}

// Update merges the patch, re-validates and tells every participant.
func (s *Service) Update(ctx context.Context, rideID, actorID string, patch UpdateInput) (*models.RideView, error) {
	r, err := s.loadOwned(ctx, rideID, actorID)
	if err != nil {
		return nil, err
	}
	if patch.From != nil {
		r.From = s.cleanPlace(*patch.From)
	}
	if patch.To != nil {
		r.To = s.cleanPlace(*patch.To)
	}
	if patch.DepartureTime != nil {
		r.DepartureTime = patch.DepartureTime.UTC()
	}
	if patch.AvailableSeats != nil {
		r.AvailableSeats = *patch.AvailableSeats
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if err := s.validateRide(r, patch.AvailableSeats != nil); err != nil {
		return nil, err
	}
	if err := s.store.SaveRide(ctx, r); err != nil {
		return nil, fmt.Errorf("save ride: %w", err)
	}
	observability.RideUpdates.Inc()

	if len(r.Participants) > 0 {
		msg := fmt.Sprintf("Ride details updated for %s to %s", r.From.Address, r.To.Address)
		ins := make([]notify.Input, 0, len(r.Participants))
		for _, p := range r.Participants {
			ins = append(ins, notify.Input{
				Recipient: p.UserID,
				Type:      models.NotifyRideUpdate,
				Ride:      r.ID,
				User:      actorID,
				Message:   msg,
			})
		}
		if _, err := s.notifier.EmitMany(ctx, ins); err != nil {
			s.logger.Error("failed to create notifications", "ride_id", r.ID, "count", len(ins), "error", err)
		}
	}

	s.publish(ctx, events.NewRideEvent(events.RideUpdated, r, actorID, s.now()))
	return s.view(ctx, r, nil), nil
}

// Delete removes the ride. Participants are not notified.
func (s *Service) Delete(ctx context.Context, rideID, actorID string) error {
	r, err := s.loadOwned(ctx, rideID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRide(ctx, rideID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRideNotFound
		}
		return fmt.Errorf("delete ride: %w", err)
	}
	observability.RideDeletes.Inc()
	s.publish(ctx, events.NewRideEvent(events.RideDeleted, r, actorID, s.now()))
	return nil
}

func takeSeat(r *models.Ride) {
	r.AvailableSeats--
	if r.AvailableSeats <= 0 {
		r.Status = models.RideFull
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.Ride, error) {
	if !storage.ValidID(id) {
		return nil, ErrRideNotFound
	}
	r, err := s.store.GetRide(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return r, nil
}

func (s *Service) loadOwned(ctx context.Context, id, actorID string) (*models.Ride, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Creator != actorID {
		return nil, ErrNotCreator
	}
	return r, nil
}

func (s *Service) publish(ctx context.Context, ev events.RideEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		observability.EventsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("ride event publish failed", "type", ev.Type, "ride_id", ev.RideID, "error", err)
		return
	}
	observability.EventsPublished.WithLabelValues("ok").Inc()
}

func (s *Service) views(ctx context.Context, rs []*models.Ride) []models.RideView {
	cache := map[string]models.UserRef{}
	out := make([]models.RideView, 0, len(rs))
	for _, r := range rs {
		out = append(out, *s.view(ctx, r, cache))
	}
	return out
}

// view populates the creator. A creator that no longer exists keeps only its id.
func (s *Service) view(ctx context.Context, r *models.Ride, cache map[string]models.UserRef) *models.RideView {
	if r.Participants == nil {
		r.Participants = []models.Participant{}
	}
	if ref, ok := cache[r.Creator]; ok {
		return &models.RideView{Ride: r, Creator: ref}
	}
	ref := models.UserRef{ID: r.Creator}
	if u, err := s.store.GetUser(ctx, r.Creator); err == nil {
		ref = models.UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
	}
	if cache != nil {
		cache[r.Creator] = ref
	}
	return &models.RideView{Ride: r, Creator: ref}
}

func appendMissing(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
