package store

import (
	"context"
	"time"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// HasAchievement checks if a user has earned an achievement.
func (r *repo) HasAchievement(ctx context.Context, userID, achievementID string) (bool, error) {
	n, err := r.count(ctx,
		`SELECT COUNT(*) FROM achievements WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID)
	return n > 0, err
}

// AwardAchievement records an achievement. Awarding twice is a no-op that
// reports false.
func (r *repo) AwardAchievement(ctx context.Context, userID, achievementID string, at time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`INSERT INTO achievements (user_id, achievement_id, earned_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, achievement_id) DO NOTHING`,
		userID, achievementID, at.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListAchievements returns a user's awards in the order they were earned.
func (r *repo) ListAchievements(ctx context.Context, userID string) ([]domain.AchievementAward, error) {
	rows, err := r.query(ctx,
		`SELECT user_id, achievement_id, earned_at FROM achievements
		 WHERE user_id = ? ORDER BY earned_at, achievement_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AchievementAward
	for rows.Next() {
		var a domain.AchievementAward
		var earnedAt int64
		if err := rows.Scan(&a.UserID, &a.AchievementID, &earnedAt); err != nil {
			return nil, err
		}
		a.EarnedAt = time.Unix(earnedAt, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}
