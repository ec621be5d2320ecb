package engagement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// UserService manages accounts and the per-adventurer rows created at signup.
type UserService struct {
	store  domain.Store
	notify *NotificationService
	log    *zap.Logger
}

// NewUserService creates a user service.
func NewUserService(store domain.Store, notify *NotificationService, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{store: store, notify: notify, log: log.Named("users")}
}

// Create registers a user. Adventurers also get a level-1 progress row and
// the default stats, in the same transaction.
func (u *UserService) Create(ctx context.Context, username string, role domain.Role, category string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.Validationf("username is required")
	}
	if role == "" {
		role = domain.RoleAdventurer
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now(),
	}
	err := u.store.InTx(ctx, func(repo domain.Repo) error {
		if err := repo.CreateUser(ctx, user); err != nil {
			return err
		}
		if role != domain.RoleAdventurer {
			return nil
		}
		p := domain.NewUserProgress(user.ID, strings.TrimSpace(category))
		p.UpdatedAt = user.CreatedAt
		if err := repo.CreateProgress(ctx, p); err != nil {
			return err
		}
		for _, name := range domain.DefaultStats {
			if err := repo.CreateStat(ctx, domain.Stat{
				UserID: user.ID,
				Name:   name,
				Value:  domain.DefaultStatValue,
				Max:    domain.DefaultStatMax,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Persistence("create user", err)
	}

	u.log.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return &user, nil
}

// Get returns a user or ErrNotFound.
func (u *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := u.store.GetUser(ctx, id)
	if err != nil {
		return nil, domain.Persistence("get user", err)
	}
	if user == nil {
		return nil, domain.NotFoundf("user %s", id)
	}
	return user, nil
}

// Resolve finds a user by id, falling back to username.
func (u *UserService) Resolve(ctx context.Context, ref string) (*domain.User, error) {
	ref = strings.TrimSpace(ref)
	user, err := u.store.GetUser(ctx, ref)
	if err == nil && user == nil {
		user, err = u.store.GetUserByUsername(ctx, ref)
	}
	if err != nil {
		return nil, domain.Persistence("resolve user", err)
	}
	if user == nil {
		return nil, domain.NotFoundf("user %s", ref)
	}
	return user, nil
}

// List returns users, optionally filtered by role.
func (u *UserService) List(ctx context.Context, role domain.Role, activeOnly bool) ([]domain.User, error) {
	users, err := u.store.ListUsers(ctx, role, activeOnly)
	if err != nil {
		return nil, domain.Persistence("list users", err)
	}
	return users, nil
}

// Require returns the user if it exists and holds one of roles.
func (u *UserService) Require(ctx context.Context, id string, roles ...domain.Role) (*domain.User, error) {
	user, err := u.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if user.Role == r {
			return user, nil
		}
	}
	return nil, domain.ErrForbidden
}

// SetCategory sets the field of interest quests are generated from.
func (u *UserService) SetCategory(ctx context.Context, userID, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.Validationf("category is required")
	}
	if err := u.store.SetCategory(ctx, userID, category); err != nil {
		return domain.Persistence("set category", err)
	}
	return nil
}

// SendFeedback delivers a coach's message to an adventurer as a
// notification. Feedback is explicit content, so the daily cap and quiet
// hours do not apply.
func (u *UserService) SendFeedback(ctx context.Context, coachID, userID, title, message string) (*domain.Notification, error) {
	coach, err := u.Require(ctx, coachID, domain.RoleCoach, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	target, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.Role != domain.RoleAdventurer {
		return nil, domain.Validationf("user %s is not an adventurer", userID)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.Validationf("message is required")
	}
	if strings.TrimSpace(title) == "" {
		title = "Feedback from " + coach.Username
	}

	n := domain.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    domain.NotifyCoachFeedback,
		Title:   title,
		Message: message,
	}
	now := time.Now()
	if err := u.notify.Deliver(ctx, n, now); err != nil {
		return nil, domain.Persistence("deliver feedback", err)
	}
	n.CreatedAt = now
	n.ExpiresAt = now.Add(u.notify.Policy().TTL)
	return &n, nil
}
