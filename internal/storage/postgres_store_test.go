package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/example/ride-pool/internal/models"
)

var rideCols = []string{"id", "creator_id", "from_address", "from_lon", "from_lat", "to_address", "to_lon", "to_lat", "departure_time", "available_seats", "participants", "status", "created_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func sampleRide() *models.Ride {
	return &models.Ride{
		ID:             "652f1c2e9b1e8a3d4c5b6a70",
		Creator:        "652f1c2e9b1e8a3d4c5b6a71",
		From:           models.Place{Type: "Point", Coordinates: models.Coordinates{78.47, 17.40}, Address: "Campus"},
		To:             models.Place{Type: "Point", Coordinates: models.Coordinates{78.50, 17.45}, Address: "Station"},
		DepartureTime:  time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC),
		AvailableSeats: 2,
		Status:         models.RideActive,
		CreatedAt:      time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPostgresCreateRide(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRide()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rides(")).
		WithArgs(r.ID, r.Creator, "Campus", 78.47, 17.40, "Station", 78.50, 17.45, r.DepartureTime, 2, "[]", "active", r.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresGetRideDecodesParticipants(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRide()
	rows := sqlmock.NewRows(rideCols).AddRow(r.ID, r.Creator, "Campus", 78.47, 17.40, "Station", 78.50, 17.45,
		r.DepartureTime, int64(1), []byte(`[{"_id":"p1","userId":"u1","name":"Asha","phone":"555","status":"pending"}]`), "active", r.CreatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rides WHERE id = $1")).WithArgs(r.ID).WillReturnRows(rows)

	got, err := s.GetRide(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	if got.AvailableSeats != 1 || len(got.Participants) != 1 {
		t.Fatalf("unexpected ride: %+v", got)
	}
	if got.Participants[0].Status != models.ParticipantPending || got.Participants[0].UserID != "u1" {
		t.Fatalf("unexpected participant: %+v", got.Participants[0])
	}
	if got.From.Coordinates.Lon() != 78.47 || got.To.Coordinates.Lat() != 17.45 {
		t.Fatalf("coordinates not restored: %+v %+v", got.From, got.To)
	}
}

func TestPostgresGetRideNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rides WHERE id = $1")).WithArgs("missing").WillReturnRows(sqlmock.NewRows(rideCols))

	if _, err := s.GetRide(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresSaveRideNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rides SET creator_id=$2")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SaveRide(context.Background(), sampleRide()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresListRidesBuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)
	after := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rides WHERE creator_id <> $1 AND status = $2 AND available_seats > 0 AND departure_time > $3 ORDER BY departure_time ASC")).
		WithArgs("u1", "active", after).
		WillReturnRows(sqlmock.NewRows(rideCols))

	rides, err := s.ListRides(context.Background(), RideFilter{ExcludeCreatorID: "u1", Status: models.RideActive, HasSeats: true, DepartsAfter: after})
	if err != nil {
		t.Fatalf("ListRides: %v", err)
	}
	if len(rides) != 0 {
		t.Fatalf("expected no rides, got %d", len(rides))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresPullParticipant(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRide()
	rows := sqlmock.NewRows(rideCols).AddRow(r.ID, r.Creator, "Campus", 78.47, 17.40, "Station", 78.50, 17.45,
		r.DepartureTime, int64(1), []byte(`[]`), "active", r.CreatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE rides SET participants = COALESCE(")).WithArgs(r.ID, "p1").WillReturnRows(rows)

	got, err := s.PullParticipant(context.Background(), r.ID, "p1")
	if err != nil {
		t.Fatalf("PullParticipant: %v", err)
	}
	if len(got.Participants) != 0 {
		t.Fatalf("expected participant removed, got %+v", got.Participants)
	}
}

func TestPostgresCreateNotificationsRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications(")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications(")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	ns := []*models.Notification{
		{Recipient: "u1", Type: models.NotifyRideUpdate, Ride: "r1", User: "u0", Message: "a", Priority: models.PriorityLow, Status: models.NotificationUnread},
		{Recipient: "u2", Type: models.NotifyRideUpdate, Ride: "r1", User: "u0", Message: "b", Priority: models.PriorityLow, Status: models.NotificationUnread},
	}
	if err := s.CreateNotifications(context.Background(), ns); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresMarkNotificationReadScopedToRecipient(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "recipient_id", "type", "ride_id", "user_id", "message", "context", "priority", "status", "created_at", "updated_at", "expires_at"}
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE notifications SET status = $3")).
		WithArgs("n1", "someone-else", "READ", now).
		WillReturnRows(sqlmock.NewRows(cols))

	if _, err := s.MarkNotificationRead(context.Background(), "n1", "someone-else", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresPurgeExpired(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notifications WHERE created_at <= $1")).
		WithArgs(now.Add(-models.NotificationRetention), now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.PurgeExpiredNotifications(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpiredNotifications: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged, got %d", n)
	}
}
