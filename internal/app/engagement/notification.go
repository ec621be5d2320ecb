package engagement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/metrics"
)

// NotificationService stores user-facing notifications under a policy:
//   - at most MaxPerDay per user per calendar day
//   - nothing inside quiet hours
//   - every notification expires after TTL
//
// Delivery is best-effort. Emission failures are logged and never fail the
// operation that raised them.
type NotificationService struct {
	store  domain.NotificationRepo
	policy domain.NotificationPolicy
	loc    *time.Location
	log    *zap.Logger
}

// NewNotificationService creates a notification service with default policy.
func NewNotificationService(store domain.NotificationRepo, log *zap.Logger) *NotificationService {
	return NewNotificationServiceWithPolicy(store, domain.DefaultNotificationPolicy(), time.UTC, log)
}

// NewNotificationServiceWithPolicy creates a notification service with custom policy.
func NewNotificationServiceWithPolicy(store domain.NotificationRepo, policy domain.NotificationPolicy, loc *time.Location, log *zap.Logger) *NotificationService {
	if policy.TTL <= 0 {
		policy.TTL = domain.DefaultNotificationPolicy().TTL
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{store: store, policy: policy, loc: loc, log: log.Named("notify")}
}

// Emit stores n if policy allows it. It returns false when the notification
// was suppressed.
func (n *NotificationService) Emit(ctx context.Context, notif domain.Notification, now time.Time) (bool, error) {
	if n.isQuietHour(now.In(n.loc)) {
		metrics.NotificationsSuppressed.WithLabelValues("quiet_hours").Inc()
		return false, nil
	}
	if n.policy.MaxPerDay > 0 {
		count, err := n.store.CountNotificationsSince(ctx, notif.UserID, startOfDay(now, n.loc))
		if err != nil {
			return false, fmt.Errorf("count today: %w", err)
		}
		if count >= n.policy.MaxPerDay {
			metrics.NotificationsSuppressed.WithLabelValues("daily_cap").Inc()
			return false, nil
		}
	}
	return true, n.Deliver(ctx, notif, now)
}

// Deliver stores n without consulting the policy. Used for explicit user
// content such as coach feedback.
func (n *NotificationService) Deliver(ctx context.Context, notif domain.Notification, now time.Time) error {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	notif.CreatedAt = now
	if notif.ExpiresAt.IsZero() {
		notif.ExpiresAt = now.Add(n.policy.TTL)
	}
	notif.Read = false

	if err := n.store.InsertNotification(ctx, notif); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	metrics.NotificationsSent.WithLabelValues(string(notif.Type)).Inc()
	return nil
}

// Flush emits a buffered batch, logging and skipping failures.
func (n *NotificationService) Flush(ctx context.Context, batch []domain.Notification, now time.Time) {
	for _, notif := range batch {
		if _, err := n.Emit(ctx, notif, now); err != nil {
			metrics.NotificationsSuppressed.WithLabelValues("error").Inc()
			n.log.Warn("notification dropped",
				zap.String("user_id", notif.UserID),
				zap.String("type", string(notif.Type)),
				zap.Error(err))
		}
	}
}

// List returns a user's unexpired notifications, newest first.
func (n *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return n.store.ListNotifications(ctx, userID, time.Now(), unreadOnly, limit)
}

// MarkRead marks a notification read.
func (n *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return n.store.MarkNotificationRead(ctx, userID, id)
}

// Purge deletes expired notifications.
func (n *NotificationService) Purge(ctx context.Context, now time.Time) (int64, error) {
	return n.store.PurgeExpiredNotifications(ctx, now)
}

// Policy returns the current notification policy.
func (n *NotificationService) Policy() domain.NotificationPolicy {
	return n.policy
}

// isQuietHour returns true if the given time falls within quiet hours.
func (n *NotificationService) isQuietHour(t time.Time) bool {
	if n.policy.QuietStart == n.policy.QuietEnd {
		return false
	}
	startHour, startMin := parseHHMM(n.policy.QuietStart)
	endHour, endMin := parseHHMM(n.policy.QuietEnd)

	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes > endMinutes {
		// Wraps midnight: e.g., 22:00 – 08:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}

// ─── Outbox ─────────────────────────────────────────────────────────────────

// outbox collects notifications raised inside a transaction so they can be
// emitted after commit.
type outbox []domain.Notification

func (o *outbox) add(userID string, typ domain.NotificationType, title, message string) {
	*o = append(*o, domain.Notification{UserID: userID, Type: typ, Title: title, Message: message})
}
