// Package domain holds the Life System types shared by the engagement
// engine, the storage adapters and the HTTP surface.
// Domain types are pure — no infrastructure dependency.
package domain

import (
	"math"
	"time"
)

// ─── Progress / Level Types ─────────────────────────────────────────────────

// BaseLevelXP is the XP needed to leave level 1.
const BaseLevelXP = 100

// LevelGrowth is the per-level multiplier on the XP threshold.
const LevelGrowth = 1.5

// MaxBaseXP caps a single template's reward.
const MaxBaseXP = 100_000

// XPToNextLevel returns the XP threshold for leaving the given level:
// floor(100 * 1.5^(level-1)), saturating at math.MaxInt64.
func XPToNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	xp := math.Floor(BaseLevelXP * math.Pow(LevelGrowth, float64(level-1)))
	if xp >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(xp)
}

// UserProgress is the per-adventurer mutable state.
type UserProgress struct {
	UserID           string    `json:"user_id"`
	Level            int       `json:"level"`
	TotalXP          int64     `json:"total_xp"`
	CurrentXP        int64     `json:"current_xp"`
	ExpToNextLevel   int64     `json:"exp_to_next_level"`
	StreakDays       int       `json:"streak_days"`
	LongestStreak    int       `json:"longest_streak"`
	LastActivityDate string    `json:"last_activity_date,omitempty"` // YYYY-MM-DD, empty before first activity
	Category         string    `json:"category"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewUserProgress returns the starting state for a fresh adventurer.
func NewUserProgress(userID, category string) UserProgress {
	return UserProgress{
		UserID:         userID,
		Level:          1,
		ExpToNextLevel: XPToNextLevel(1),
		Category:       category,
	}
}

// ProgressPct returns progress toward the next level (0.0–100.0).
func (p UserProgress) ProgressPct() float64 {
	if p.ExpToNextLevel <= 0 {
		return 100.0
	}
	pct := float64(p.CurrentXP) / float64(p.ExpToNextLevel) * 100.0
	return math.Max(0, math.Min(100, pct))
}

// LevelChange is a level-progression history row.
type LevelChange struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FromLevel int       `json:"from_level"`
	ToLevel   int       `json:"to_level"`
	TotalXP   int64     `json:"total_xp"`
	ChangedAt time.Time `json:"changed_at"`
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stat is a named attribute whose value only grows, clamped at Max.
type Stat struct {
	UserID string `json:"-"`
	Name   string `json:"name"`
	Value  int    `json:"value"`
	Max    int    `json:"max"`
}

// AtMax reports whether the stat has reached its cap.
func (s Stat) AtMax() bool { return s.Value >= s.Max }

// DefaultStats are created for every adventurer at signup.
var DefaultStats = []string{"Strength", "Agility", "Intelligence", "Vitality", "Perception"}

const (
	DefaultStatValue = 10
	DefaultStatMax   = 100
)

// ─── Streak Types ───────────────────────────────────────────────────────────

// DailyCheckin aggregates one user's completions for one calendar day.
type DailyCheckin struct {
	UserID          string `json:"user_id"`
	Date            string `json:"date"` // YYYY-MM-DD
	QuestsCompleted int    `json:"quests_completed"`
	XPEarned        int64  `json:"xp_earned"`
}

// StreakSummary is returned by every completion.
type StreakSummary struct {
	Current     int  `json:"current"`
	Longest     int  `json:"longest"`
	Broken      bool `json:"broken"`
	IsNewRecord bool `json:"is_new_record"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementStats is the snapshot fed to achievement predicates.
type AchievementStats struct {
	Level           int   `json:"level"`
	TotalXP         int64 `json:"total_xp"`
	StreakDays      int   `json:"streak_days"`
	QuestsCompleted int   `json:"quests_completed"`
	AnyStatAtMax    bool  `json:"any_stat_at_max"`
}

// AchievementDef defines a single achievement's requirement.
type AchievementDef struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Icon        string                      `json:"icon"`
	Predicate   func(AchievementStats) bool `json:"-"`
}

// AchievementAward records that a user earned an achievement.
type AchievementAward struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

// ─── Completion Result ──────────────────────────────────────────────────────

// CompletionResult is the consolidated outcome of completing a quest.
type CompletionResult struct {
	QuestID         string           `json:"quest_id"`
	XPGained        int64            `json:"xp_gained"`
	LeveledUp       bool             `json:"leveled_up"`
	PreviousLevel   int              `json:"previous_level"`
	NewLevel        int              `json:"new_level"`
	TotalXP         int64            `json:"total_xp"`
	CurrentXP       int64            `json:"current_xp"`
	ExpToNextLevel  int64            `json:"exp_to_next_level"`
	StatIncreased   string           `json:"stat_increased,omitempty"`
	NewAchievements []AchievementDef `json:"new_achievements"`
	Streak          StreakSummary    `json:"streak"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyAchievement     NotificationType = "achievement"
	NotifyLevelUp         NotificationType = "level_up"
	NotifyStreakMilestone NotificationType = "streak_milestone"
	NotifyStreakReset     NotificationType = "streak_reset"
	NotifyCoachFeedback   NotificationType = "coach_feedback"
	NotifySystem          NotificationType = "system"
)

// Notification is a user-facing message with an expiry.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Read      bool             `json:"read"`
}

// NotificationPolicy governs how often notifications are delivered.
// Quiet hours are disabled when QuietStart == QuietEnd.
type NotificationPolicy struct {
	MaxPerDay  int           `json:"max_per_day"`
	QuietStart string        `json:"quiet_start"` // "22:00"
	QuietEnd   string        `json:"quiet_end"`   // "08:00"
	TTL        time.Duration `json:"ttl"`
}

// DefaultNotificationPolicy returns the stock policy: generous cap, no quiet
// hours, one-week retention.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		MaxPerDay: 20,
		TTL:       7 * 24 * time.Hour,
	}
}
