package domain

import (
	"context"
	"time"
)

// ─── Persistence Port ───────────────────────────────────────────────────────
// The engagement engine depends only on these interfaces.
// infra/store implements them over database/sql (SQLite or Postgres).
// Lookups of a single row return (nil, nil) when the row does not exist.

// QuestFilter narrows an assigned-quest listing.
type QuestFilter struct {
	QuestType QuestType // empty = all types
	ActiveAt  time.Time // non-zero = only not completed, not expired at this instant
	Limit     int
}

// UserRepo stores accounts.
type UserRepo interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, role Role, activeOnly bool) ([]User, error)
}

// ProgressRepo stores per-adventurer progress and stats.
type ProgressRepo interface {
	CreateProgress(ctx context.Context, p UserProgress) error
	GetProgress(ctx context.Context, userID string) (*UserProgress, error)
	// LockProgress reads the row for a read-modify-write inside InTx.
	LockProgress(ctx context.Context, userID string) (*UserProgress, error)
	SaveProgress(ctx context.Context, p UserProgress) error
	SetCategory(ctx context.Context, userID, category string) error

	CreateStat(ctx context.Context, s Stat) error
	ListStats(ctx context.Context, userID string) ([]Stat, error)
	// IncrementStat adds delta clamped at the stat's max. Returns nil when
	// the user has no stat of that name.
	IncrementStat(ctx context.Context, userID, name string, delta int) (*Stat, error)
	AnyStatAtMax(ctx context.Context, userID string) (bool, error)

	InsertLevelChange(ctx context.Context, c LevelChange) error
	UpsertDailyCheckin(ctx context.Context, userID, date string, xpDelta int64) error
	GetDailyCheckin(ctx context.Context, userID, date string) (*DailyCheckin, error)
	ListCheckins(ctx context.Context, userID, sinceDate string) ([]DailyCheckin, error)
}

// QuestRepo stores the template catalog and assigned quests.
type QuestRepo interface {
	UpsertTemplate(ctx context.Context, t QuestTemplate) error
	ListTemplates(ctx context.Context, f TemplateFilter) ([]QuestTemplate, error)
	CountTemplates(ctx context.Context) (int, error)
	// RetireTemplatesExcept deactivates every active template not in keep.
	RetireTemplatesExcept(ctx context.Context, keep []string) (int64, error)

	InsertAssignedQuest(ctx context.Context, q AssignedQuest) error
	GetAssignedQuest(ctx context.Context, id string) (*AssignedQuest, error)
	// LockAssignedQuest reads the row for the completion check-and-set.
	LockAssignedQuest(ctx context.Context, id string) (*AssignedQuest, error)
	ListAssignedQuests(ctx context.Context, userID string, f QuestFilter) ([]AssignedQuest, error)
	// DeleteAssignedQuests removes a user's uncompleted quests of a type:
	// the current batch (expires after now) or, with onlyExpired, the stale ones.
	DeleteAssignedQuests(ctx context.Context, userID string, qt QuestType, onlyExpired bool, now time.Time) (int64, error)
	// MarkQuestCompleted flips completed 0→1. false means it was already set.
	MarkQuestCompleted(ctx context.Context, id, userID string, xp int64, at time.Time) (bool, error)
	ExpireQuests(ctx context.Context, qt QuestType, now time.Time) (int64, error)
	PurgeExpiredQuests(ctx context.Context, expiredBefore time.Time) (int64, error)
	UsersWithoutActiveQuests(ctx context.Context, qt QuestType, now time.Time) ([]string, error)
	CountQuestsAssignedSince(ctx context.Context, userID string, qt QuestType, sinceDate string) (int, error)
	CountCompletedQuests(ctx context.Context, userID string) (int, error)
	InsertQuestCompletion(ctx context.Context, c QuestCompletion) error
}

// AchievementRepo stores append-only achievement awards.
type AchievementRepo interface {
	HasAchievement(ctx context.Context, userID, achievementID string) (bool, error)
	// AwardAchievement is idempotent; true means newly awarded.
	AwardAchievement(ctx context.Context, userID, achievementID string, at time.Time) (bool, error)
	ListAchievements(ctx context.Context, userID string) ([]AchievementAward, error)
}

// NotificationRepo stores user notifications.
type NotificationRepo interface {
	InsertNotification(ctx context.Context, n Notification) error
	CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListNotifications(ctx context.Context, userID string, now time.Time, unreadOnly bool, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

// Repo is every persistence operation, usable inside or outside a transaction.
type Repo interface {
	UserRepo
	ProgressRepo
	QuestRepo
	AchievementRepo
	NotificationRepo
}

// Store is the root persistence handle.
type Store interface {
	Repo
	// InTx runs fn in one transaction; any error rolls everything back.
	InTx(ctx context.Context, fn func(Repo) error) error
	Ping(ctx context.Context) error
	Close() error
}
