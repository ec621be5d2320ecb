// Package engagement implements the Life System rules engine: quest
// selection and lifecycle, XP and levels, streaks, achievements and
// notifications. It depends only on the persistence port in domain.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/metrics"
)

const dateLayout = "2006-01-02"

// streakResetGuard is the streak length a reset must exceed to warn the user.
const streakResetGuard = 7

// StreakTracker computes day-over-day streak continuation.
// A day counts once at least one quest is completed on it.
type StreakTracker struct {
	loc *time.Location
}

// NewStreakTracker creates a tracker that buckets days in loc (UTC if nil).
func NewStreakTracker(loc *time.Location) *StreakTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{loc: loc}
}

// NextStreak returns the streak length after activity on today, given the
// current length and the last active day (empty before any activity).
//
//	same day        → unchanged
//	previous day    → +1
//	any larger gap  → 1, broken (unless this is the first activity)
func NextStreak(current int, lastDate, today string) (next int, broken bool) {
	if lastDate == "" {
		return 1, false
	}
	gap, err := daysBetween(lastDate, today)
	if err != nil {
		return 1, true
	}
	switch {
	case gap <= 0:
		return max(current, 1), false
	case gap == 1:
		return current + 1, false
	default:
		return 1, true
	}
}

// IsMilestone reports whether a streak length earns a milestone notification:
// 7, 30, then every 50 days.
func IsMilestone(days int) bool {
	return days == 7 || days == 30 || (days > 30 && days%50 == 0)
}

// Record upserts today's checkin and advances p's streak fields in place.
// p must be the pre-completion profile; the caller persists it.
func (s *StreakTracker) Record(ctx context.Context, repo domain.ProgressRepo, p *domain.UserProgress, xp int64, now time.Time, out *outbox) (domain.StreakSummary, error) {
	today := now.In(s.loc).Format(dateLayout)

	if err := repo.UpsertDailyCheckin(ctx, p.UserID, today, xp); err != nil {
		return domain.StreakSummary{}, fmt.Errorf("upsert checkin: %w", err)
	}

	previous := p.StreakDays
	previousLongest := p.LongestStreak
	next, broken := NextStreak(previous, p.LastActivityDate, today)

	p.StreakDays = next
	p.LongestStreak = max(previousLongest, next)
	p.LastActivityDate = today

	if next != previous && IsMilestone(next) {
		out.add(p.UserID, domain.NotifyStreakMilestone,
			fmt.Sprintf("%d-Day Streak!", next),
			fmt.Sprintf("You have completed quests %d days in a row. Keep going, hunter.", next))
	}
	if broken {
		metrics.StreakResets.Inc()
		if previous > streakResetGuard {
			out.add(p.UserID, domain.NotifyStreakReset,
				"Streak Reset",
				fmt.Sprintf("Your %d-day streak has ended. A new one starts today.", previous))
		}
	}

	return domain.StreakSummary{
		Current:     next,
		Longest:     p.LongestStreak,
		Broken:      broken,
		IsNewRecord: next > previousLongest,
	}, nil
}

// daysBetween returns the number of calendar days from a to b (YYYY-MM-DD).
func daysBetween(a, b string) (int, error) {
	ta, err := time.Parse(dateLayout, a)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", a, err)
	}
	tb, err := time.Parse(dateLayout, b)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", b, err)
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// startOfDay returns midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
