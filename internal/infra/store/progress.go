package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// ─── User Progress ──────────────────────────────────────────────────────────

const progressColumns = `user_id, level, total_xp, current_xp, exp_to_next,
	streak_days, longest_streak, last_activity_date, category, updated_at`

// CreateProgress inserts the starting progress row for an adventurer.
func (r *repo) CreateProgress(ctx context.Context, p domain.UserProgress) error {
	_, err := r.exec(ctx,
		`INSERT INTO user_progress (`+progressColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Level, p.TotalXP, p.CurrentXP, p.ExpToNextLevel,
		p.StreakDays, p.LongestStreak, p.LastActivityDate, p.Category, unixOrZero(p.UpdatedAt),
	)
	return err
}

// GetProgress retrieves a user's progress row.
func (r *repo) GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	return r.getProgress(ctx, userID, "")
}

// LockProgress retrieves a user's progress row for update.
func (r *repo) LockProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	return r.getProgress(ctx, userID, r.dialect.lock(""))
}

func (r *repo) getProgress(ctx context.Context, userID, lock string) (*domain.UserProgress, error) {
	row := r.queryRow(ctx,
		`SELECT `+progressColumns+` FROM user_progress WHERE user_id = ?`+lock, userID)

	var p domain.UserProgress
	var updatedAt int64
	err := row.Scan(&p.UserID, &p.Level, &p.TotalXP, &p.CurrentXP, &p.ExpToNextLevel,
		&p.StreakDays, &p.LongestStreak, &p.LastActivityDate, &p.Category, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = timeOrZero(updatedAt)
	return &p, nil
}

// SaveProgress writes back level, XP and streak state in one statement.
func (r *repo) SaveProgress(ctx context.Context, p domain.UserProgress) error {
	res, err := r.exec(ctx,
		`UPDATE user_progress SET level = ?, total_xp = ?, current_xp = ?, exp_to_next = ?,
			streak_days = ?, longest_streak = ?, last_activity_date = ?, category = ?, updated_at = ?
		 WHERE user_id = ?`,
		p.Level, p.TotalXP, p.CurrentXP, p.ExpToNextLevel,
		p.StreakDays, p.LongestStreak, p.LastActivityDate, p.Category, unixOrZero(p.UpdatedAt),
		p.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "progress for user %s", p.UserID)
}

// SetCategory changes the field of interest used for quest generation.
func (r *repo) SetCategory(ctx context.Context, userID, category string) error {
	res, err := r.exec(ctx,
		`UPDATE user_progress SET category = ?, updated_at = ? WHERE user_id = ?`,
		category, time.Now().Unix(), userID)
	if err != nil {
		return err
	}
	return requireRow(res, "progress for user %s", userID)
}

// InsertLevelChange appends a level-progression history row.
func (r *repo) InsertLevelChange(ctx context.Context, c domain.LevelChange) error {
	_, err := r.exec(ctx,
		`INSERT INTO level_history (id, user_id, from_level, to_level, total_xp, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.FromLevel, c.ToLevel, c.TotalXP, c.ChangedAt.Unix())
	return err
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// CreateStat inserts a stat for a user.
func (r *repo) CreateStat(ctx context.Context, s domain.Stat) error {
	_, err := r.exec(ctx,
		`INSERT INTO stats (user_id, name, value, max_value) VALUES (?, ?, ?, ?)`,
		s.UserID, s.Name, s.Value, s.Max)
	return err
}

// ListStats returns a user's stats ordered by name.
func (r *repo) ListStats(ctx context.Context, userID string) ([]domain.Stat, error) {
	rows, err := r.query(ctx,
		`SELECT user_id, name, value, max_value FROM stats WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.Stat
	for rows.Next() {
		var s domain.Stat
		if err := rows.Scan(&s.UserID, &s.Name, &s.Value, &s.Max); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// IncrementStat raises a stat by delta, clamped at its max value.
// Stat names match case-insensitively.
func (r *repo) IncrementStat(ctx context.Context, userID, name string, delta int) (*domain.Stat, error) {
	res, err := r.exec(ctx,
		`UPDATE stats SET value = `+r.dialect.least()+`(value + ?, max_value)
		 WHERE user_id = ? AND LOWER(name) = LOWER(?)`,
		delta, userID, name)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	var s domain.Stat
	err = r.queryRow(ctx,
		`SELECT user_id, name, value, max_value FROM stats WHERE user_id = ? AND LOWER(name) = LOWER(?)`,
		userID, name).Scan(&s.UserID, &s.Name, &s.Value, &s.Max)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AnyStatAtMax reports whether any of the user's stats has reached its cap.
func (r *repo) AnyStatAtMax(ctx context.Context, userID string) (bool, error) {
	n, err := r.count(ctx,
		`SELECT COUNT(*) FROM stats WHERE user_id = ? AND value >= max_value`, userID)
	return n > 0, err
}

// ─── Daily Checkins ─────────────────────────────────────────────────────────

// UpsertDailyCheckin records one completion for the given calendar day.
func (r *repo) UpsertDailyCheckin(ctx context.Context, userID, date string, xpDelta int64) error {
	_, err := r.exec(ctx,
		`INSERT INTO daily_checkins (user_id, checkin_date, quests_completed, xp_earned)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id, checkin_date) DO UPDATE SET
			quests_completed = daily_checkins.quests_completed + 1,
			xp_earned = daily_checkins.xp_earned + excluded.xp_earned`,
		userID, date, xpDelta)
	return err
}

// GetDailyCheckin retrieves one day's checkin.
func (r *repo) GetDailyCheckin(ctx context.Context, userID, date string) (*domain.DailyCheckin, error) {
	var c domain.DailyCheckin
	err := r.queryRow(ctx,
		`SELECT user_id, checkin_date, quests_completed, xp_earned
		 FROM daily_checkins WHERE user_id = ? AND checkin_date = ?`, userID, date).
		Scan(&c.UserID, &c.Date, &c.QuestsCompleted, &c.XPEarned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCheckins returns checkins on or after sinceDate, newest first.
func (r *repo) ListCheckins(ctx context.Context, userID, sinceDate string) ([]domain.DailyCheckin, error) {
	rows, err := r.query(ctx,
		`SELECT user_id, checkin_date, quests_completed, xp_earned
		 FROM daily_checkins WHERE user_id = ? AND checkin_date >= ?
		 ORDER BY checkin_date DESC`, userID, sinceDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyCheckin
	for rows.Next() {
		var c domain.DailyCheckin
		if err := rows.Scan(&c.UserID, &c.Date, &c.QuestsCompleted, &c.XPEarned); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// requireRow maps "no row updated" to domain.ErrNotFound.
func requireRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundf(format, args...)
	}
	return nil
}
