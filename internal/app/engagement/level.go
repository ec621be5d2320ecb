package engagement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/metrics"
)

// ApplyXP adds xp to p and resolves every level-up it pays for:
// while CurrentXP >= ExpToNextLevel, spend the threshold, gain a level and
// recompute the threshold as floor(100 * 1.5^(level-1)). It returns the
// number of levels gained.
func ApplyXP(p *domain.UserProgress, xp int64) int {
	if xp <= 0 {
		return 0
	}
	if p.Level < 1 {
		p.Level = 1
	}
	if p.ExpToNextLevel <= 0 {
		p.ExpToNextLevel = domain.XPToNextLevel(p.Level)
	}

	p.TotalXP = addSaturating(p.TotalXP, xp)
	p.CurrentXP = addSaturating(p.CurrentXP, xp)

	gained := 0
	for p.CurrentXP >= p.ExpToNextLevel {
		p.CurrentXP -= p.ExpToNextLevel
		p.Level++
		p.ExpToNextLevel = domain.XPToNextLevel(p.Level)
		gained++
	}
	return gained
}

// addSaturating adds a non-negative delta, clamping at math.MaxInt64.
func addSaturating(v, delta int64) int64 {
	if delta > math.MaxInt64-v {
		return math.MaxInt64
	}
	return v + delta
}

// ProgressionService completes quests: it awards XP, resolves level-ups,
// raises the quest's stat, advances the streak and evaluates achievements,
// all in one transaction.
type ProgressionService struct {
	store        domain.Store
	streaks      *StreakTracker
	achievements *AchievementService
	notify       *NotificationService
	log          *zap.Logger
}

// NewProgressionService wires a progression service.
func NewProgressionService(store domain.Store, streaks *StreakTracker, achievements *AchievementService, notify *NotificationService, log *zap.Logger) *ProgressionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressionService{
		store:        store,
		streaks:      streaks,
		achievements: achievements,
		notify:       notify,
		log:          log.Named("progression"),
	}
}

// Complete completes questID for userID now.
func (s *ProgressionService) Complete(ctx context.Context, userID, questID string) (*domain.CompletionResult, error) {
	return s.CompleteAt(ctx, userID, questID, time.Now())
}

// CompleteAt completes questID for userID at the given time.
//
// The quest row is locked and flipped completed 0→1 with a check-and-set, so
// concurrent double-submits award XP once; the loser gets ErrAlreadyCompleted.
// Notifications are emitted after commit and never fail the completion.
func (s *ProgressionService) CompleteAt(ctx context.Context, userID, questID string, now time.Time) (*domain.CompletionResult, error) {
	var (
		res *domain.CompletionResult
		out outbox
	)
	err := s.store.InTx(ctx, func(repo domain.Repo) error {
		var err error
		res, err = s.complete(ctx, repo, userID, questID, now, &out)
		return err
	})
	if err != nil {
		metrics.QuestCompletionRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, domain.Persistence("complete quest", err)
	}

	metrics.XPAwarded.Add(float64(res.XPGained))
	if res.LeveledUp {
		metrics.LevelUps.Add(float64(res.NewLevel - res.PreviousLevel))
	}
	s.log.Info("quest completed",
		zap.String("user_id", userID),
		zap.String("quest_id", questID),
		zap.Int64("xp", res.XPGained),
		zap.Int("level", res.NewLevel),
		zap.Int("streak", res.Streak.Current))

	if s.notify != nil {
		s.notify.Flush(ctx, out, now)
	}
	return res, nil
}

func (s *ProgressionService) complete(ctx context.Context, repo domain.Repo, userID, questID string, now time.Time, out *outbox) (*domain.CompletionResult, error) {
	q, err := repo.LockAssignedQuest(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("load quest: %w", err)
	}
	if q == nil || q.UserID != userID {
		return nil, domain.NotFoundf("quest %s", questID)
	}
	if q.Completed {
		return nil, fmt.Errorf("%w: quest %s", domain.ErrAlreadyCompleted, questID)
	}
	if q.State(now) == domain.QuestStateExpired {
		return nil, domain.Validationf("quest %s expired at %s", questID, q.ExpiresAt.Format(time.RFC3339))
	}

	xp := RewardFor(q)
	ok, err := repo.MarkQuestCompleted(ctx, q.ID, userID, xp, now)
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: quest %s", domain.ErrAlreadyCompleted, questID)
	}
	if err := repo.InsertQuestCompletion(ctx, domain.QuestCompletion{
		ID:          uuid.NewString(),
		UserID:      userID,
		QuestID:     q.ID,
		TemplateID:  q.TemplateID,
		QuestType:   q.QuestType,
		XP:          xp,
		CompletedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}

	p, err := repo.LockProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if p == nil {
		return nil, domain.NotFoundf("progress for user %s", userID)
	}

	// Streak day-accounting reads the pre-update profile.
	streak, err := s.streaks.Record(ctx, repo, p, xp, now, out)
	if err != nil {
		return nil, err
	}

	previousLevel := p.Level
	gained := ApplyXP(p, xp)
	p.UpdatedAt = now
	if err := repo.SaveProgress(ctx, *p); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	if gained > 0 {
		if err := repo.InsertLevelChange(ctx, domain.LevelChange{
			ID:        uuid.NewString(),
			UserID:    userID,
			FromLevel: previousLevel,
			ToLevel:   p.Level,
			TotalXP:   p.TotalXP,
			ChangedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("record level change: %w", err)
		}
		out.add(userID, domain.NotifyLevelUp,
			fmt.Sprintf("Level Up! Level %d", p.Level),
			fmt.Sprintf("You advanced from level %d to level %d.", previousLevel, p.Level))
	}

	var statIncreased string
	if stat := relatedStat(q); stat != "" {
		st, err := repo.IncrementStat(ctx, userID, stat, 1)
		if err != nil {
			return nil, fmt.Errorf("increment stat %s: %w", stat, err)
		}
		if st != nil {
			statIncreased = st.Name
		}
	}

	completed, err := repo.CountCompletedQuests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}
	anyMax, err := repo.AnyStatAtMax(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check stats: %w", err)
	}
	unlocked, err := s.achievements.evaluate(ctx, repo, userID, domain.AchievementStats{
		Level:           p.Level,
		TotalXP:         p.TotalXP,
		StreakDays:      p.StreakDays,
		QuestsCompleted: completed,
		AnyStatAtMax:    anyMax,
	}, now, out)
	if err != nil {
		return nil, err
	}

	metrics.QuestsCompleted.WithLabelValues(string(q.QuestType)).Inc()
	return &domain.CompletionResult{
		QuestID:         q.ID,
		XPGained:        xp,
		LeveledUp:       gained > 0,
		PreviousLevel:   previousLevel,
		NewLevel:        p.Level,
		TotalXP:         p.TotalXP,
		CurrentXP:       p.CurrentXP,
		ExpToNextLevel:  p.ExpToNextLevel,
		StatIncreased:   statIncreased,
		NewAchievements: unlocked,
		Streak:          streak,
	}, nil
}

// RewardFor returns the XP a quest pays: its template's base XP, or the
// quest-type default when the quest has no template.
func RewardFor(q *domain.AssignedQuest) int64 {
	if q.Template != nil {
		return q.Template.BaseXP
	}
	return q.QuestType.DefaultXP()
}

func relatedStat(q *domain.AssignedQuest) string {
	if q.Template != nil && q.Template.RelatedStat != "" {
		return q.Template.RelatedStat
	}
	return q.RelatedStat
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, domain.ErrValidation):
		return "expired"
	default:
		return "persistence"
	}
}

// ─── Progress Read Model ────────────────────────────────────────────────────

// ProgressView is the dashboard snapshot of one adventurer.
type ProgressView struct {
	domain.UserProgress
	ProgressPct float64       `json:"progress_pct"`
	Stats       []domain.Stat `json:"stats"`
	Completed   int           `json:"quests_completed"`
}

// Progress returns the current progress snapshot for userID.
func (s *ProgressionService) Progress(ctx context.Context, userID string) (*ProgressView, error) {
	p, err := s.store.GetProgress(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("get progress", err)
	}
	if p == nil {
		return nil, domain.NotFoundf("progress for user %s", userID)
	}
	stats, err := s.store.ListStats(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("list stats", err)
	}
	completed, err := s.store.CountCompletedQuests(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("count completions", err)
	}
	return &ProgressView{
		UserProgress: *p,
		ProgressPct:  p.ProgressPct(),
		Stats:        stats,
		Completed:    completed,
	}, nil
}

// Checkins returns the user's daily checkins for the last days days, newest first.
func (s *ProgressionService) Checkins(ctx context.Context, userID string, days int, now time.Time) ([]domain.DailyCheckin, error) {
	if days <= 0 {
		days = 30
	}
	since := now.In(s.streaks.loc).AddDate(0, 0, -(days - 1)).Format(dateLayout)
	out, err := s.store.ListCheckins(ctx, userID, since)
	if err != nil {
		return nil, domain.Persistence("list checkins", err)
	}
	return out, nil
}
