package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/example/ride-pool/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const rideColumns = `id, creator_id, from_address, from_lon, from_lat, to_address, to_lon, to_lat, departure_time, available_seats, participants, status, created_at`

const notificationColumns = `id, recipient_id, type, ride_id, user_id, message, context, priority, status, created_at, updated_at, expires_at`

const userColumns = `id, name, email, phone, college, department, profile_picture, created_at`

// PostgresStore keeps participants and notification context as JSONB so the
// documents keep their shape.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// Migrate applies the embedded schema migrations. It is a no-op when the
// schema is current.
func (p *PostgresStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(p.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close(ctx context.Context) error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(s rowScanner) (*models.Ride, error) {
	var (
		r            models.Ride
		fromLon      float64
		fromLat      float64
		toLon        float64
		toLat        float64
		participants []byte
		status       string
	)
	err := s.Scan(&r.ID, &r.Creator, &r.From.Address, &fromLon, &fromLat, &r.To.Address, &toLon, &toLat,
		&r.DepartureTime, &r.AvailableSeats, &participants, &status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.From.Type, r.To.Type = "Point", "Point"
	r.From.Coordinates = models.Coordinates{fromLon, fromLat}
	r.To.Coordinates = models.Coordinates{toLon, toLat}
	r.Status = models.RideStatus(status)
	r.Participants = []models.Participant{}
	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &r.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
	}
	return &r, nil
}

// participantsJSON encodes as text; lib/pq would send []byte as bytea.
func participantsJSON(ps []models.Participant) (string, error) {
	if ps == nil {
		ps = []models.Participant{}
	}
	b, err := json.Marshal(ps)
	return string(b), err
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	parts, err := participantsJSON(r.Participants)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		r.ID, r.Creator, r.From.Address, r.From.Coordinates.Lon(), r.From.Coordinates.Lat(),
		r.To.Address, r.To.Coordinates.Lon(), r.To.Coordinates.Lat(),
		r.DepartureTime, r.AvailableSeats, parts, string(r.Status), r.CreatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	r, err := scanRide(p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) SaveRide(ctx context.Context, r *models.Ride) error {
	parts, err := participantsJSON(r.Participants)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET creator_id=$2, from_address=$3, from_lon=$4, from_lat=$5, to_address=$6, to_lon=$7, to_lat=$8, departure_time=$9, available_seats=$10, participants=$11, status=$12 WHERE id=$1`,
		r.ID, r.Creator, r.From.Address, r.From.Coordinates.Lon(), r.From.Coordinates.Lat(),
		r.To.Address, r.To.Coordinates.Lon(), r.To.Coordinates.Lat(),
		r.DepartureTime, r.AvailableSeats, parts, string(r.Status))
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (p *PostgresStore) DeleteRide(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (p *PostgresStore) ListRides(ctx context.Context, f RideFilter) ([]*models.Ride, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CreatorID != "" {
		add("creator_id = $%d", f.CreatorID)
	}
	if f.ExcludeCreatorID != "" {
		add("creator_id <> $%d", f.ExcludeCreatorID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ExcludeStatus != "" {
		add("status <> $%d", string(f.ExcludeStatus))
	}
	if f.HasSeats {
		where = append(where, "available_seats > 0")
	}
	if !f.DepartsAfter.IsZero() {
		add("departure_time > $%d", f.DepartsAfter)
	}
	q := `SELECT ` + rideColumns + ` FROM rides`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY departure_time ASC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PullParticipant(ctx context.Context, rideID, participantID string) (*models.Ride, error) {
	r, err := scanRide(p.db.QueryRowContext(ctx, `UPDATE rides SET participants = COALESCE((SELECT jsonb_agg(p) FROM jsonb_array_elements(participants) AS p WHERE p->>'_id' <> $2), '[]'::jsonb) WHERE id = $1 RETURNING `+rideColumns,
		rideID, participantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func scanNotification(s rowScanner) (*models.Notification, error) {
	var (
		n         models.Notification
		rideID    sql.NullString
		userID    sql.NullString
		ctxJSON   []byte
		typ       string
		priority  string
		status    string
		expiresAt sql.NullTime
	)
	err := s.Scan(&n.ID, &n.Recipient, &typ, &rideID, &userID, &n.Message, &ctxJSON, &priority, &status,
		&n.CreatedAt, &n.UpdatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.Priority = models.NotificationPriority(priority)
	n.Status = models.NotificationStatus(status)
	n.Ride = rideID.String
	n.User = userID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		n.ExpiresAt = &t
	}
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &n.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return &n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, db execer, n *models.Notification) error {
	if n.ID == "" {
		n.ID = NewID()
	}
	var ctxJSON sql.NullString
	if n.Context != nil {
		b, err := json.Marshal(n.Context)
		if err != nil {
			return fmt.Errorf("encode context: %w", err)
		}
		ctxJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.Recipient, string(n.Type), nullString(n.Ride), nullString(n.User), n.Message, ctxJSON,
		string(n.Priority), string(n.Status), n.CreatedAt, n.UpdatedAt, nullTime(n.ExpiresAt))
	return err
}

func (p *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return insertNotification(ctx, p.db, n)
}

// CreateNotifications inserts all or none.
func (p *PostgresStore) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, n := range ns {
		if err := insertNotification(ctx, tx, n); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) ListNotifications(ctx context.Context, recipientID string, limit int, now time.Time) ([]*models.Notification, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE recipient_id = $1 AND created_at > $2 AND (expires_at IS NULL OR expires_at > $3) ORDER BY created_at DESC LIMIT $4`,
		recipientID, now.Add(-models.NotificationRetention), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkNotificationRead(ctx context.Context, id, recipientID string, now time.Time) (*models.Notification, error) {
	n, err := scanNotification(p.db.QueryRowContext(ctx, `UPDATE notifications SET status = $3, updated_at = $4 WHERE id = $1 AND recipient_id = $2 RETURNING `+notificationColumns,
		id, recipientID, string(models.NotificationRead), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (p *PostgresStore) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at <= $1 OR (expires_at IS NOT NULL AND expires_at <= $2)`,
		now.Add(-models.NotificationRetention), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.College, &u.Department, &u.ProfilePicture, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Name, u.Email, u.Phone, u.College, u.Department, u.ProfilePicture, u.CreatedAt)
	return err
}

func (p *PostgresStore) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET name=$2, email=$3, phone=$4, college=$5, department=$6, profile_picture=$7 WHERE id=$1`,
		u.ID, u.Name, u.Email, u.Phone, u.College, u.Department, u.ProfilePicture)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
