package engagement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/metrics"
)

// AchievementService evaluates the fixed achievement table against a
// progress snapshot and awards each achievement at most once per user.
type AchievementService struct {
	store       domain.Store
	notify      *NotificationService
	definitions []domain.AchievementDef
	log         *zap.Logger
}

// NewAchievementService creates an achievement service with all definitions.
func NewAchievementService(store domain.Store, notify *NotificationService, log *zap.Logger) *AchievementService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AchievementService{
		store:       store,
		notify:      notify,
		definitions: AllAchievements(),
		log:         log.Named("achievements"),
	}
}

// CheckAndUnlock evaluates every achievement for userID in its own
// transaction and returns the newly awarded ones.
func (a *AchievementService) CheckAndUnlock(ctx context.Context, userID string, stats domain.AchievementStats) ([]domain.AchievementDef, error) {
	now := time.Now()
	var out outbox
	var unlocked []domain.AchievementDef
	err := a.store.InTx(ctx, func(repo domain.Repo) error {
		var err error
		unlocked, err = a.evaluate(ctx, repo, userID, stats, now, &out)
		return err
	})
	if err != nil {
		return nil, domain.Persistence("check achievements", err)
	}
	if a.notify != nil {
		a.notify.Flush(ctx, out, now)
	}
	return unlocked, nil
}

// evaluate walks the table in declaration order. Already-held achievements
// are skipped; satisfied ones are awarded and queued for notification.
func (a *AchievementService) evaluate(ctx context.Context, repo domain.AchievementRepo, userID string, stats domain.AchievementStats, now time.Time, out *outbox) ([]domain.AchievementDef, error) {
	unlocked := []domain.AchievementDef{}
	for _, def := range a.definitions {
		if def.Predicate == nil || !def.Predicate(stats) {
			continue
		}
		held, err := repo.HasAchievement(ctx, userID, def.ID)
		if err != nil {
			return nil, fmt.Errorf("has achievement %s: %w", def.ID, err)
		}
		if held {
			continue
		}
		isNew, err := repo.AwardAchievement(ctx, userID, def.ID, now)
		if err != nil {
			return nil, fmt.Errorf("award achievement %s: %w", def.ID, err)
		}
		if !isNew {
			continue
		}
		unlocked = append(unlocked, def)
		metrics.AchievementsUnlocked.WithLabelValues(def.ID).Inc()
		out.add(userID, domain.NotifyAchievement,
			"Achievement Unlocked: "+def.Name, def.Description)
		a.log.Info("achievement unlocked", zap.String("user_id", userID), zap.String("achievement", def.ID))
	}
	return unlocked, nil
}

// Earned returns the user's awards joined with their definitions, in the
// order they were earned. Awards for retired ids are skipped.
func (a *AchievementService) Earned(ctx context.Context, userID string) ([]EarnedAchievement, error) {
	awards, err := a.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.AchievementDef, len(a.definitions))
	for _, def := range a.definitions {
		byID[def.ID] = def
	}
	out := make([]EarnedAchievement, 0, len(awards))
	for _, aw := range awards {
		def, ok := byID[aw.AchievementID]
		if !ok {
			continue
		}
		out = append(out, EarnedAchievement{AchievementDef: def, EarnedAt: aw.EarnedAt})
	}
	return out, nil
}

// Definitions returns all achievement definitions (for display).
func (a *AchievementService) Definitions() []domain.AchievementDef {
	return a.definitions
}

// EarnedAchievement is a definition plus the time it was awarded.
type EarnedAchievement struct {
	domain.AchievementDef
	EarnedAt time.Time `json:"earned_at"`
}

// ─── Achievement Definitions ────────────────────────────────────────────────

// AllAchievements returns the achievement table in evaluation order.
func AllAchievements() []domain.AchievementDef {
	return []domain.AchievementDef{
		{
			ID: "first_quest", Name: "First Steps", Icon: "👣",
			Description: "Complete your first quest.",
			Predicate:   func(s domain.AchievementStats) bool { return s.QuestsCompleted >= 1 },
		},
		{
			ID: "week_warrior", Name: "Week Warrior", Icon: "🔥",
			Description: "Keep a 7-day streak.",
			Predicate:   func(s domain.AchievementStats) bool { return s.StreakDays >= 7 },
		},
		{
			ID: "level_5", Name: "Awakened", Icon: "⚡",
			Description: "Reach level 5.",
			Predicate:   func(s domain.AchievementStats) bool { return s.Level >= 5 },
		},
		{
			ID: "level_10", Name: "Rising Hunter", Icon: "🌅",
			Description: "Reach level 10.",
			Predicate:   func(s domain.AchievementStats) bool { return s.Level >= 10 },
		},
		{
			ID: "level_20", Name: "Elite Hunter", Icon: "🗡️",
			Description: "Reach level 20.",
			Predicate:   func(s domain.AchievementStats) bool { return s.Level >= 20 },
		},
		{
			ID: "level_50", Name: "Shadow Monarch", Icon: "👑",
			Description: "Reach level 50.",
			Predicate:   func(s domain.AchievementStats) bool { return s.Level >= 50 },
		},
		{
			ID: "quest_master", Name: "Quest Master", Icon: "📜",
			Description: "Complete 50 quests.",
			Predicate:   func(s domain.AchievementStats) bool { return s.QuestsCompleted >= 50 },
		},
		{
			ID: "dedication", Name: "Dedication", Icon: "💪",
			Description: "Keep a 30-day streak.",
			Predicate:   func(s domain.AchievementStats) bool { return s.StreakDays >= 30 },
		},
		{
			ID: "power_surge", Name: "Power Surge", Icon: "💥",
			Description: "Earn 1000 total XP.",
			Predicate:   func(s domain.AchievementStats) bool { return s.TotalXP >= 1000 },
		},
		{
			ID: "stat_master", Name: "Stat Master", Icon: "⭐",
			Description: "Max out any stat.",
			Predicate:   func(s domain.AchievementStats) bool { return s.AnyStatAtMax },
		},
	}
}
