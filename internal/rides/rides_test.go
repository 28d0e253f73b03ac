package rides

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-pool/internal/events"
	"github.com/example/ride-pool/internal/models"
	"github.com/example/ride-pool/internal/notify"
	"github.com/example/ride-pool/internal/storage"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Input
	err  error
}

func (f *fakeNotifier) Emit(ctx context.Context, in notify.Input) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &models.Notification{Recipient: in.Recipient, Type: in.Type}, nil
}

func (f *fakeNotifier) EmitMany(ctx context.Context, ins []notify.Input) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, ins...)
	return make([]*models.Notification, len(ins)), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.RideEvent
}

func (f *fakePublisher) Publish(ctx context.Context, ev events.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	svc      *Service
	store    *storage.MemoryStore
	notifier *fakeNotifier
	pub      *fakePublisher
	creator  *models.User
	alice    *models.User
	bob      *models.User
	carol    *models.User
}

var testNow = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		notifier: &fakeNotifier{},
		pub:      &fakePublisher{},
	}
	f.svc = NewService(f.store, f.notifier, f.pub, nil)
	f.svc.now = func() time.Time { return testNow }
	ctx := context.Background()
	mk := func(name, phone string) *models.User {
		u := &models.User{Name: name, Email: strings.ToLower(name) + "@college.edu", Phone: phone}
		if err := f.store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		return u
	}
	f.creator = mk("Ravi", "9000000001")
	f.alice = mk("Alice", "9000000002")
	f.bob = mk("Bob", "9000000003")
	f.carol = mk("Carol", "9000000004")
	return f
}

func validInput(seats int) CreateInput {
	return CreateInput{
		From:           models.Place{Coordinates: models.Coordinates{78.47, 17.40}, Address: "Campus Gate"},
		To:             models.Place{Coordinates: models.Coordinates{78.50, 17.45}, Address: "Central Station"},
		DepartureTime:  testNow.Add(24 * time.Hour),
		AvailableSeats: seats,
	}
}

func (f *fixture) offer(t *testing.T, seats int) *models.RideView {
	t.Helper()
	v, err := f.svc.Create(context.Background(), f.creator.ID, validInput(seats))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return v
}

func (f *fixture) stored(t *testing.T, id string) *models.Ride {
	t.Helper()
	r, err := f.store.GetRide(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	return r
}

func TestCreatePopulatesCreator(t *testing.T) {
	f := newFixture(t)
	v := f.offer(t, 3)

	if v.Status != models.RideActive || v.AvailableSeats != 3 {
		t.Fatalf("unexpected ride %+v", v.Ride)
	}
	if v.Creator.Name != "Ravi" || v.Creator.Email != "ravi@college.edu" {
		t.Fatalf("creator not populated: %+v", v.Creator)
	}
	if v.From.Type != "Point" {
		t.Fatalf("expected default point type, got %q", v.From.Type)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].Type != events.RideCreated {
		t.Fatalf("expected ride.created event, got %+v", f.pub.events)
	}
}

func TestCreateSanitizesAddresses(t *testing.T) {
	f := newFixture(t)
	in := validInput(2)
	in.From.Address = `<img src=x onerror="alert(1)">Library`
	v, err := f.svc.Create(context.Background(), f.creator.ID, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v.From.Address != "Library" {
		t.Fatalf("expected markup stripped, got %q", v.From.Address)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	in := validInput(0)
	in.From.Address = ""
	in.To.Coordinates = models.Coordinates{200, 17}
	in.DepartureTime = time.Time{}

	_, err := f.svc.Create(context.Background(), f.creator.ID, in)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	msg := ve.Error()
	for _, want := range []string{"from.address is required", "to.coordinates must be a [longitude, latitude] pair", "departureTime is required", "availableSeats must be at least 1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
	rides, _ := f.store.ListRides(context.Background(), storage.RideFilter{})
	if len(rides) != 0 {
		t.Fatalf("invalid ride was stored")
	}
}

func TestJoinUntilFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 2)

	v, err := f.svc.Join(ctx, ride.ID, f.alice.ID)
	if err != nil {
		t.Fatalf("Join A: %v", err)
	}
	if v.AvailableSeats != 1 || v.Status != models.RideActive {
		t.Fatalf("after A: seats=%d status=%s", v.AvailableSeats, v.Status)
	}
	p := v.Participants[0]
	if p.UserID != f.alice.ID || p.Name != "Alice" || p.Phone != "9000000002" || p.Status != models.ParticipantPending {
		t.Fatalf("unexpected participant %+v", p)
	}

	v, err = f.svc.Join(ctx, ride.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("Join B: %v", err)
	}
	if v.AvailableSeats != 0 || v.Status != models.RideFull {
		t.Fatalf("after B: seats=%d status=%s", v.AvailableSeats, v.Status)
	}

	if _, err := f.svc.Join(ctx, ride.ID, f.carol.ID); !errors.Is(err, ErrNoSeats) {
		t.Fatalf("expected ErrNoSeats, got %v", err)
	}
	r := f.stored(t, ride.ID)
	if len(r.Participants) != 2 || r.AvailableSeats != 0 {
		t.Fatalf("full ride was mutated: %+v", r)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("join must not notify, got %+v", f.notifier.sent)
	}
	if last := f.pub.events[len(f.pub.events)-1]; last.Type != events.RideJoined || last.Recipients[0] != f.creator.ID {
		t.Fatalf("expected ride.joined to the creator, got %+v", last)
	}
}

func TestJoinMissingUserOrRide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 2)

	if _, err := f.svc.Join(ctx, ride.ID, storage.NewID()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := f.svc.Join(ctx, storage.NewID(), f.alice.ID); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
	if _, err := f.svc.Join(ctx, "garbage", f.alice.ID); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound for malformed id, got %v", err)
	}
}

func TestAcceptConfirmsAndTakesSecondSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 2)
	joined, _ := f.svc.Join(ctx, ride.ID, f.alice.ID)
	pid := joined.Participants[0].ID

	v, err := f.svc.Accept(ctx, ride.ID, pid, f.creator.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if v.Participants[0].Status != models.ParticipantAccepted {
		t.Fatalf("participant not accepted: %+v", v.Participants[0])
	}
	if v.AvailableSeats != 0 || v.Status != models.RideFull {
		t.Fatalf("expected second decrement to 0/full, got %d/%s", v.AvailableSeats, v.Status)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.Type != models.NotifyRideConfirmation || n.Recipient != f.alice.ID || n.User != f.creator.ID || n.Ride != ride.ID {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Message != "Your ride request has been accepted for ride from Campus Gate to Central Station" {
		t.Fatalf("unexpected message %q", n.Message)
	}

	if _, err := f.svc.Accept(ctx, ride.ID, pid, f.creator.ID); !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("expected ErrAlreadyAccepted, got %v", err)
	}
	if r := f.stored(t, ride.ID); r.AvailableSeats != 0 {
		t.Fatalf("repeat accept mutated the ride: %d", r.AvailableSeats)
	}
}

func TestAcceptRejectsWhenSeatsAlreadyTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 2)
	joined, _ := f.svc.Join(ctx, ride.ID, f.alice.ID)
	_, _ = f.svc.Join(ctx, ride.ID, f.bob.ID)

	if _, err := f.svc.Accept(ctx, ride.ID, joined.Participants[0].ID, f.creator.ID); !errors.Is(err, ErrNoSeats) {
		t.Fatalf("expected ErrNoSeats, got %v", err)
	}
	r := f.stored(t, ride.ID)
	if r.Participants[0].Status != models.ParticipantPending {
		t.Fatalf("participant changed: %+v", r.Participants[0])
	}
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 3)
	joined, _ := f.svc.Join(ctx, ride.ID, f.alice.ID)
	pid := joined.Participants[0].ID

	if _, err := f.svc.Accept(ctx, ride.ID, pid, f.bob.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if _, err := f.svc.Accept(ctx, ride.ID, storage.NewID(), f.creator.ID); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := f.svc.Accept(ctx, storage.NewID(), pid, f.creator.ID); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestAcceptSucceedsWhenNotificationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 3)
	joined, _ := f.svc.Join(ctx, ride.ID, f.alice.ID)
	f.notifier.err = errors.New("store down")

	if _, err := f.svc.Accept(ctx, ride.ID, joined.Participants[0].ID, f.creator.ID); err != nil {
		t.Fatalf("notification failure leaked: %v", err)
	}
	if r := f.stored(t, ride.ID); r.Participants[0].Status != models.ParticipantAccepted {
		t.Fatal("accept was not persisted")
	}
}

func TestRejectRemovesOnlyThatParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 3)
	a, _ := f.svc.Join(ctx, ride.ID, f.alice.ID)
	_, _ = f.svc.Join(ctx, ride.ID, f.bob.ID)
	pid := a.Participants[0].ID

	v, err := f.svc.Reject(ctx, ride.ID, pid, f.creator.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(v.Participants) != 1 || v.Participants[0].UserID != f.bob.ID {
		t.Fatalf("unexpected participants %+v", v.Participants)
	}
	if v.AvailableSeats != 1 {
		t.Fatalf("seat must not be returned, got %d", v.AvailableSeats)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Type != models.NotifyRideCancel || f.notifier.sent[0].Recipient != f.alice.ID {
		t.Fatalf("expected RIDE_CANCEL to alice, got %+v", f.notifier.sent)
	}
	last := f.pub.events[len(f.pub.events)-1]
	if last.Type != events.RideRejected || last.ParticipantID != pid {
		t.Fatalf("unexpected event %+v", last)
	}
	found := false
	for _, id := range last.Recipients {
		found = found || id == f.alice.ID
	}
	if !found {
		t.Fatalf("rejected user missing from recipients %v", last.Recipients)
	}
}

func TestRejectGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 3)
	a, _ := f.svc.Join(ctx, ride.ID, f.alice.ID)

	if _, err := f.svc.Reject(ctx, ride.ID, a.Participants[0].ID, f.alice.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if _, err := f.svc.Reject(ctx, ride.ID, storage.NewID(), f.creator.ID); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if r := f.stored(t, ride.ID); len(r.Participants) != 1 {
		t.Fatalf("guards mutated the ride: %+v", r.Participants)
	}
}

func TestUpdateMergesAndNotifiesParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 4)
	_, _ = f.svc.Join(ctx, ride.ID, f.alice.ID)
	_, _ = f.svc.Join(ctx, ride.ID, f.bob.ID)

	dep := testNow.Add(48 * time.Hour)
	seats := 5
	v, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{
		To:             &models.Place{Coordinates: models.Coordinates{78.55, 17.42}, Address: "Airport"},
		DepartureTime:  &dep,
		AvailableSeats: &seats,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.To.Address != "Airport" || !v.DepartureTime.Equal(dep) || v.AvailableSeats != 5 {
		t.Fatalf("patch not applied: %+v", v.Ride)
	}
	if v.From.Address != "Campus Gate" {
		t.Fatalf("untouched field changed: %q", v.From.Address)
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected one notification per participant, got %d", len(f.notifier.sent))
	}
	got := map[string]bool{}
	for _, n := range f.notifier.sent {
		if n.Type != models.NotifyRideUpdate || n.Message != "Ride details updated for Campus Gate to Airport" {
			t.Fatalf("unexpected notification %+v", n)
		}
		got[n.Recipient] = true
	}
	if !got[f.alice.ID] || !got[f.bob.ID] {
		t.Fatalf("notifications must address participant users, got %v", got)
	}
}

func TestUpdateGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 2)
	seats := 9

	if _, err := f.svc.Update(ctx, ride.ID, f.alice.ID, UpdateInput{AvailableSeats: &seats}); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if r := f.stored(t, ride.ID); r.AvailableSeats != 2 {
		t.Fatalf("non-creator update mutated ride: %d", r.AvailableSeats)
	}

	bogus := models.RideStatus("parked")
	var ve *ValidationError
	if _, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{Status: &bogus}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for status, got %v", err)
	}
	zero := 0
	if _, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{AvailableSeats: &zero}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for seats, got %v", err)
	}
	done := models.RideCompleted
	if _, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{Status: &done}); err != nil {
		t.Fatalf("valid status rejected: %v", err)
	}
}

func TestUpdateFullRide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 1)
	if _, err := f.svc.Join(ctx, ride.ID, f.alice.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if r := f.stored(t, ride.ID); r.AvailableSeats != 0 || r.Status != models.RideFull {
		t.Fatalf("expected 0/full, got %d/%s", r.AvailableSeats, r.Status)
	}

	later := testNow.Add(48 * time.Hour)
	v, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{DepartureTime: &later})
	if err != nil {
		t.Fatalf("departure change on a full ride: %v", err)
	}
	if !v.DepartureTime.Equal(later) || v.AvailableSeats != 0 {
		t.Fatalf("unexpected ride after update: %+v", v.Ride)
	}

	cancelled := models.RideCancelled
	if _, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{Status: &cancelled}); err != nil {
		t.Fatalf("cancelling a full ride: %v", err)
	}
	if r := f.stored(t, ride.ID); r.Status != models.RideCancelled {
		t.Fatalf("expected cancelled, got %s", r.Status)
	}

	zero := 0
	var ve *ValidationError
	if _, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{AvailableSeats: &zero}); !errors.As(err, &ve) {
		t.Fatalf("explicit zero seats must still fail, got %v", err)
	}
}

func TestUpdateSwallowsNotificationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 3)
	_, _ = f.svc.Join(ctx, ride.ID, f.alice.ID)
	f.notifier.err = errors.New("insert failed")
	seats := 4
	if _, err := f.svc.Update(ctx, ride.ID, f.creator.ID, UpdateInput{AvailableSeats: &seats}); err != nil {
		t.Fatalf("notification failure leaked: %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ride := f.offer(t, 2)

	if err := f.svc.Delete(ctx, ride.ID, f.alice.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := f.svc.Delete(ctx, ride.ID, f.creator.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, ride.ID); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, ride.ID, f.creator.ID); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestBrowseAndMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := validInput(2)
	late.DepartureTime = testNow.Add(72 * time.Hour)
	lateRide, _ := f.svc.Create(ctx, f.creator.ID, late)
	early := f.offer(t, 1)
	_, _ = f.svc.Join(ctx, early.ID, f.alice.ID)
	other, _ := f.svc.Create(ctx, f.bob.ID, validInput(3))

	browse, err := f.svc.Browse(ctx)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(browse) != 2 || browse[0].ID != other.ID || browse[1].ID != lateRide.ID {
		t.Fatalf("unexpected browse result %+v", browse)
	}

	mine, err := f.svc.Mine(ctx, f.creator.ID)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != early.ID || mine[1].ID != lateRide.ID {
		t.Fatalf("unexpected mine result %+v", mine)
	}
	if mine[0].Creator.Name != "Ravi" {
		t.Fatalf("creator not populated in list: %+v", mine[0].Creator)
	}
}
