package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-pool/internal/models"
)

// MemoryStore keeps everything in process. Reads and writes copy documents,
// so a ride fetched by one request is not shared with another.
type MemoryStore struct {
	mu            sync.RWMutex
	rides         map[string]*models.Ride
	notifications map[string]*models.Notification
	users         map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:         make(map[string]*models.Ride),
		notifications: make(map[string]*models.Notification),
		users:         make(map[string]*models.User),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = NewID()
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) SaveRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ErrNotFound
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) DeleteRide(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[id]; !ok {
		return ErrNotFound
	}
	delete(m.rides, id)
	return nil
}

func (m *MemoryStore) ListRides(ctx context.Context, f RideFilter) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}

func (m *MemoryStore) PullParticipant(ctx context.Context, rideID, participantID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	kept := r.Participants[:0:0]
	for _, p := range r.Participants {
		if p.ID != participantID {
			kept = append(kept, p)
		}
	}
	r.Participants = kept
	return r.Clone(), nil
}

func (m *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return m.CreateNotifications(ctx, []*models.Notification{n})
}

func (m *MemoryStore) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range ns {
		if n.ID == "" {
			n.ID = NewID()
		}
		m.notifications[n.ID] = n.Clone()
	}
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, recipientID string, limit int, now time.Time) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Notification, 0)
	for _, n := range m.notifications {
		if n.Recipient != recipientID || n.Expired(now) {
			continue
		}
		out = append(out, n.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, id, recipientID string, now time.Time) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.Recipient != recipientID {
		return nil, ErrNotFound
	}
	n.MarkAsRead(now)
	return n.Clone(), nil
}

func (m *MemoryStore) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, note := range m.notifications {
		if note.Expired(now) {
			delete(m.notifications, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = NewID()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) Close(ctx context.Context) error { return nil }
