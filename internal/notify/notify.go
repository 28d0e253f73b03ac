// Package notify builds, persists and delivers user notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/example/ride-pool/internal/dispatch"
	"github.com/example/ride-pool/internal/models"
	"github.com/example/ride-pool/internal/observability"
	"github.com/example/ride-pool/internal/storage"
)

const (
	MaxMessageLength = 500
	DefaultListLimit = 20
)

var (
	ErrInvalidNotification  = errors.New("invalid notification")
	ErrNotificationNotFound = errors.New("notification not found")
)

// Store is what the service needs from persistence: notifications plus the
// ride and user lookups used to populate listings.
type Store interface {
	storage.NotificationStore
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Input describes a notification to emit. Ride, User, Context and Priority
// are optional.
type Input struct {
	Recipient string
	Type      models.NotificationType
	Ride      string
	User      string
	Message   string
	Context   any
	Priority  models.NotificationPriority
}

type Service struct {
	Store  Store
	Hub    dispatch.Hub // optional realtime delivery
	Logger *slog.Logger
	Limit  int

	now      func() time.Time
	sanitize *bluemonday.Policy
}

func NewService(store Store, hub dispatch.Hub, logger *slog.Logger, limit int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Service{
		Store:    store,
		Hub:      hub,
		Logger:   logger,
		Limit:    limit,
		now:      time.Now,
		sanitize: bluemonday.StrictPolicy(),
	}
}

// Build validates in and returns the notification that would be stored.
func (s *Service) Build(in Input) (*models.Notification, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, in.Type)
	}
	if in.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	}
	if in.Type.RequiresRide() && in.Ride == "" {
		return nil, fmt.Errorf("%w: ride is required for %s", ErrInvalidNotification, in.Type)
	}
	if in.Type.RequiresUser() && in.User == "" {
		return nil, fmt.Errorf("%w: user is required for %s", ErrInvalidNotification, in.Type)
	}

	msg := s.sanitize.Sanitize(strings.TrimSpace(in.Message))
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message cannot exceed %d characters", ErrInvalidNotification, MaxMessageLength)
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityLow
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, priority)
	}

	now := s.now().UTC()
	n := &models.Notification{
		Recipient: in.Recipient,
		Type:      in.Type,
		Ride:      in.Ride,
		User:      in.User,
		Message:   msg,
		Context:   wrapContext(in.Context),
		Priority:  priority,
		Status:    models.NotificationUnread,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if priority == models.PriorityCritical {
		exp := now.Add(models.CriticalNotificationTTL)
		n.ExpiresAt = &exp
	}
	return n, nil
}

func wrapContext(v any) map[string]any {
	switch c := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return c
	default:
		return map[string]any{"data": c}
	}
}

// Emit validates, persists and pushes one notification.
func (s *Service) Emit(ctx context.Context, in Input) (*models.Notification, error) {
	n, err := s.Build(in)
	if err != nil {
		observability.NotificationFailures.WithLabelValues(string(in.Type)).Inc()
		return nil, err
	}
	if err := s.Store.CreateNotification(ctx, n); err != nil {
		observability.NotificationFailures.WithLabelValues(string(in.Type)).Inc()
		return nil, fmt.Errorf("save notification: %w", err)
	}
	observability.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	s.push(ctx, n)
	return n, nil
}

// EmitMany persists a batch. Nothing is stored if any input is invalid.
func (s *Service) EmitMany(ctx context.Context, ins []Input) ([]*models.Notification, error) {
	if len(ins) == 0 {
		return nil, nil
	}
	ns := make([]*models.Notification, 0, len(ins))
	for _, in := range ins {
		n, err := s.Build(in)
		if err != nil {
			observability.NotificationFailures.WithLabelValues(string(in.Type)).Add(float64(len(ins)))
			return nil, err
		}
		ns = append(ns, n)
	}
	if err := s.Store.CreateNotifications(ctx, ns); err != nil {
		observability.NotificationFailures.WithLabelValues(string(ins[0].Type)).Add(float64(len(ins)))
		return nil, fmt.Errorf("save notifications: %w", err)
	}
	for _, n := range ns {
		observability.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
		s.push(ctx, n)
	}
	return ns, nil
}

func (s *Service) push(ctx context.Context, n *models.Notification) {
	if s.Hub == nil {
		return
	}
	msg, err := dispatch.NewMessage(dispatch.KindNotification, n)
	if err == nil {
		err = s.Hub.Publish(ctx, n.Recipient, msg)
	}
	if err != nil {
		s.Logger.Warn("notification push failed", "notification_id", n.ID, "recipient", n.Recipient, "error", err)
	}
}

// List returns the newest notifications of a user with ride and user
// references populated. References that no longer resolve are left null.
func (s *Service) List(ctx context.Context, userID string) ([]models.NotificationView, error) {
	ns, err := s.Store.ListNotifications(ctx, userID, s.Limit, s.now())
	if err != nil {
		return nil, err
	}
	rides := map[string]*models.RideSummary{}
	users := map[string]*models.UserSummary{}
	out := make([]models.NotificationView, 0, len(ns))
	for _, n := range ns {
		v := models.NotificationView{Notification: n}
		if n.Ride != "" {
			if _, ok := rides[n.Ride]; !ok {
				rides[n.Ride] = s.rideSummary(ctx, n.Ride)
			}
			v.Ride = rides[n.Ride]
		}
		if n.User != "" {
			if _, ok := users[n.User]; !ok {
				users[n.User] = s.userSummary(ctx, n.User)
			}
			v.User = users[n.User]
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) rideSummary(ctx context.Context, id string) *models.RideSummary {
	r, err := s.Store.GetRide(ctx, id)
	if err != nil {
		return nil
	}
	return &models.RideSummary{ID: r.ID, From: r.From, To: r.To, DepartureTime: r.DepartureTime}
}

func (s *Service) userSummary(ctx context.Context, id string) *models.UserSummary {
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return nil
	}
	return &models.UserSummary{ID: u.ID, Name: u.Name}
}

// MarkRead sets the notification status to READ. Only the recipient may do so;
// anyone else sees ErrNotificationNotFound.
func (s *Service) MarkRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	if !storage.ValidID(id) {
		return nil, ErrNotificationNotFound
	}
	n, err := s.Store.MarkNotificationRead(ctx, id, userID, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}
